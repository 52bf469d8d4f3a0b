package main

import (
	"log"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "voicenotes",
		Short: "Ask questions about your dictated notes",
		Long:  "voicenotes stores dictated notes in a vector index and answers questions about them with a single LLM call over the most similar notes.",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML configuration file")

	rootCmd.AddCommand(createServeCommand(&configPath))
	rootCmd.AddCommand(createIngestCommand(&configPath))
	rootCmd.AddCommand(createAskCommand(&configPath))
	rootCmd.AddCommand(createNotesCommand(&configPath))
	rootCmd.AddCommand(createImportCommand(&configPath))

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
