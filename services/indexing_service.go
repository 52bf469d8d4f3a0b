package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/itish2003/voicenotes/models"
	"github.com/itish2003/voicenotes/vectorstore"
)

// DefaultQuietPeriod is how long a watched file must stay unchanged before it is imported.
const DefaultQuietPeriod = time.Second

// FileIndexingService imports transcripts and documents from a directory as notes.
// Every chunk of a file becomes one note tagged with the file path. Chunk ids are derived
// from the file's sha256 hash, and only the last chunk carries the hash itself, so a file
// counts as imported once all of its chunks are in the index.
// Notes are never deleted, so an edited file is imported again as new notes.
type FileIndexingService struct {
	ragService  RAGService
	store       vectorstore.Store
	splitter    textsplitter.TextSplitter
	quietPeriod time.Duration
}

// ImportResult summarizes one directory scan.
type ImportResult struct {
	Files   int
	Skipped int
	Failed  int
	Notes   int
}

// NewFileIndexingService creates a new indexing service. The store is only read, to learn
// which file hashes have already been imported.
func NewFileIndexingService(ragService RAGService, store vectorstore.Store, chunkSize, chunkOverlap int) *FileIndexingService {
	return &FileIndexingService{
		ragService: ragService,
		store:      store,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
		quietPeriod: DefaultQuietPeriod,
	}
}

// WatchDirectory imports files as they are created or written. A file is imported once it
// has seen no events for the quiet period, so a transcript written in several bursts is
// read whole. It blocks until ctx is done.
func (s *FileIndexingService) WatchDirectory(ctx context.Context, dirPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dirPath); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dirPath, err)
	}
	log.Printf("WATCHER: Watching directory: %s", dirPath)

	pending := make(map[string]*time.Timer)
	ready := make(chan string)
	done := make(chan struct{})
	defer func() {
		close(done)
		for _, timer := range pending {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSupportedFile(event.Name) {
				continue
			}

			// Editors often save through a temp file and rename, so Create and Write
			// are handled the same.
			switch {
			case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
				if timer, ok := pending[event.Name]; ok {
					timer.Reset(s.quietPeriod)
					continue
				}
				path := event.Name
				pending[path] = time.AfterFunc(s.quietPeriod, func() {
					select {
					case ready <- path:
					case <-done:
					}
				})
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				if timer, ok := pending[event.Name]; ok {
					timer.Stop()
					delete(pending, event.Name)
				}
				log.Printf("WATCHER: %s was removed; its notes are kept", event.Name)
			}

		case path := <-ready:
			delete(pending, path)
			s.importWatched(ctx, path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("WATCHER ERROR: %v", err)

		case <-ctx.Done():
			log.Println("WATCHER: Context cancelled, shutting down watcher.")
			return nil
		}
	}
}

// importWatched imports one settled file. The hash check skips files already indexed.
func (s *FileIndexingService) importWatched(ctx context.Context, path string) {
	known, err := s.knownHashes(ctx)
	if err != nil {
		log.Printf("WATCHER ERROR: %v", err)
		return
	}
	n, err := s.importFile(ctx, path, known)
	if err != nil {
		log.Printf("WATCHER ERROR: Failed to import %s after %d notes: %v", path, n, err)
		return
	}
	if n > 0 {
		log.Printf("WATCHER: Imported %s as %d notes", path, n)
	}
}

// ScanAndImportDirectory walks dirPath and imports every supported file whose content hash
// is not in the index yet. A file that fails to import is logged and counted, and the scan
// moves on.
func (s *FileIndexingService) ScanAndImportDirectory(ctx context.Context, dirPath string) (ImportResult, error) {
	log.Printf("INDEXER: Starting directory scan for: %s", dirPath)
	var result ImportResult

	known, err := s.knownHashes(ctx)
	if err != nil {
		return result, err
	}
	log.Printf("INDEXER: Found %d imported files in the index.", len(known))

	err = filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !isSupportedFile(path) {
			return nil
		}

		result.Files++
		n, err := s.importFile(ctx, path, known)
		result.Notes += n
		switch {
		case err != nil:
			result.Failed++
			log.Printf("INDEXER ERROR: Failed to import %s: %v", path, err)
		case n == 0:
			result.Skipped++
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("error walking the path %s: %w", dirPath, err)
	}

	log.Printf("INDEXER: Directory scan finished: %d files, %d skipped, %d failed, %d notes added.",
		result.Files, result.Skipped, result.Failed, result.Notes)
	return result, nil
}

// importFile ingests path unless its hash is already in known. It returns the number of
// notes written, including those written before a failure, and records the hash in known
// on success. Chunk ids are stable for a given file content, so retrying after a failure
// overwrites the chunks already written instead of duplicating them.
func (s *FileIndexingService) importFile(ctx context.Context, path string, known map[string]bool) (int, error) {
	hash, err := calculateFileHash(path)
	if err != nil {
		return 0, stepError(StepCheckIndex, err)
	}
	if known[hash] {
		return 0, nil
	}

	text, err := ExtractTextFromFile(path)
	if err != nil {
		return 0, stepError(StepExtract, err)
	}
	if strings.TrimSpace(text) == "" {
		log.Printf("INDEXER: %s has no text, skipping", path)
		known[hash] = true
		return 0, nil
	}

	split, err := s.splitter.SplitText(text)
	if err != nil {
		return 0, stepError(StepSplit, err)
	}
	chunks := split[:0]
	for _, chunk := range split {
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
	}
	log.Printf("INDEXER: Split %s into %d chunks.", path, len(chunks))

	written := 0
	for i, chunk := range chunks {
		req := models.IngestDataRequest{
			ID:     chunkID(hash, i),
			Text:   chunk,
			Source: path,
		}
		// The hash marks the file as imported, so it goes on the last write only.
		if i == len(chunks)-1 {
			req.SourceHash = hash
		}
		if _, err := s.ragService.IngestNote(ctx, req); err != nil {
			return written, fmt.Errorf("could not ingest chunk %d of %s: %w", i, path, err)
		}
		written++
	}
	known[hash] = true
	return written, nil
}

// chunkID derives the note id of chunk i of the file with the given content hash.
func chunkID(hash string, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(hash+"#"+strconv.Itoa(i))).String()
}

// knownHashes collects the source hashes of every note already in the index.
func (s *FileIndexingService) knownHashes(ctx context.Context) (map[string]bool, error) {
	notes, err := s.store.List(ctx, NotesNamespace)
	if err != nil {
		return nil, stepError(StepCheckIndex, err)
	}
	known := make(map[string]bool)
	for _, n := range notes {
		if n.Metadata.SourceHash != "" {
			known[n.Metadata.SourceHash] = true
		}
	}
	return known, nil
}

func isSupportedFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".txt", ".md", ".pdf":
		return true
	default:
		return false
	}
}

func calculateFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
