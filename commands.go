package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/itish2003/voicenotes/config"
	"github.com/itish2003/voicenotes/controller"
	"github.com/itish2003/voicenotes/models"
	"github.com/itish2003/voicenotes/services"
)

var (
	boldGreen = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
	faint     = color.New(color.Faint).SprintFunc()
	red       = color.New(color.FgRed).SprintFunc()
)

// withApp loads the configuration, builds the app and hands it to fn.
func withApp(ctx context.Context, configPath string, fn func(*app) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	services.ConfigurePDFLicense(cfg.UnidocLicenseKey)

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func createServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Start the HTTP API and, when import.dir is set, import and watch the notes directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, *configPath, func(a *app) error { return serve(ctx, a) })
		},
	}
}

// serve runs the HTTP server and the optional background importer. It returns only after
// the importer has stopped, so the caller may close the store.
func serve(ctx context.Context, a *app) error {
	ctx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		stop()
		wg.Wait()
	}()

	if dir := a.cfg.Import.Dir; dir != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runImporter(ctx, a, dir)
		}()
	}

	router := controller.NewRouter(controller.NewRAGController(a.ragService), a.cfg.RequestTimeout())
	port := a.cfg.Server.Port
	srv := &http.Server{Addr: ":" + port, Handler: router}

	log.Printf("Go Gin backend server starting on http://localhost:%s", port)
	log.Printf("Health check available at: http://localhost:%s/health", port)
	log.Printf("API endpoints:")
	log.Printf("  POST http://localhost:%s/api/v1/notes", port)
	log.Printf("  GET  http://localhost:%s/api/v1/notes", port)
	log.Printf("  POST http://localhost:%s/api/v1/query", port)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runImporter does one scan of dir and then, if configured, watches it until ctx is done.
func runImporter(ctx context.Context, a *app, dir string) {
	importer := a.importer()
	if _, err := importer.ScanAndImportDirectory(ctx, dir); err != nil {
		log.Printf("INDEXER ERROR: %v", err)
	}
	if !a.cfg.Import.Watch {
		return
	}
	if err := importer.WatchDirectory(ctx, dir); err != nil {
		log.Printf("WATCHER ERROR: %v", err)
	}
}

func createIngestCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <text>",
		Short: "Store a note",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withApp(cmd.Context(), *configPath, func(a *app) error {
				ack, err := a.ragService.IngestNote(cmd.Context(), models.IngestDataRequest{Text: text})
				if err != nil {
					return err
				}
				fmt.Printf("%s %s\n", boldGreen("Saved note"), ack.ID)
				return nil
			})
		},
	}
}

func createAskCommand(configPath *string) *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from your notes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return withApp(cmd.Context(), *configPath, func(a *app) error {
				resp, err := a.ragService.QueryRAG(cmd.Context(), models.QueryTextRequest{Query: question})
				if resp != nil {
					fmt.Printf("%s %s\n", boldCyan("Answer:"), resp.Response)
					if showSources {
						for i, s := range resp.Sources {
							fmt.Printf("  %s %s %s\n", faint(fmt.Sprintf("[%d]", i+1)), s.Content, faint(fmt.Sprintf("(%.3f)", s.Score)))
						}
					}
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&showSources, "sources", "s", false, "Print the notes the answer was based on")

	return cmd
}

func createNotesCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "notes",
		Short: "List every stored note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configPath, func(a *app) error {
				resp, err := a.ragService.GetAllNotes(cmd.Context())
				if err != nil {
					return err
				}
				for _, n := range resp.Data {
					line := n.Metadata.Text
					if n.Metadata.Source != "" {
						line += " " + faint("("+n.Metadata.Source+")")
					}
					fmt.Printf("%s %s\n", boldGreen(n.ID), line)
				}
				fmt.Printf("%d notes\n", len(resp.Data))
				return nil
			})
		},
	}
}

func createImportCommand(configPath *string) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Import .txt, .md and .pdf files from a directory as notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, *configPath, func(a *app) error {
				importer := a.importer()
				result, err := importer.ScanAndImportDirectory(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s %d notes from %d files (%d unchanged, %s)\n",
					boldGreen("Imported"), result.Notes, result.Files, result.Skipped,
					red(fmt.Sprintf("%d failed", result.Failed)))
				if !watch {
					return nil
				}
				return importer.WatchDirectory(ctx, args[0])
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep watching the directory for new files")

	return cmd
}
