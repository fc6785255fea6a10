package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/kilupskalvis/sitedoc/internal/config"
	"github.com/kilupskalvis/sitedoc/internal/store"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new sitedoc workspace",
	Long: `Initialize a new sitedoc workspace in the current directory.
This creates a .sitedoc directory holding the configuration and, by default,
the document database.`,
	Args: cobra.NoArgs,
	Run:  runInit,
}

var initBackend string

func init() {
	initCmd.Flags().StringVar(&initBackend, "backend", store.BackendBbolt, "Storage backend (bbolt|sqlite)")
}

func runInit(cmd *cobra.Command, args []string) {
	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	// Check if already initialized
	if _, err := config.FindRoot(cwd); err == nil {
		exitError("sitedoc workspace already exists")
	}

	cfg, err := config.Initialize(cwd, initBackend)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	// Create the database file now so later commands fail fast on a bad data dir.
	backend, err := store.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		os.RemoveAll(cfg.Root())
		exitError("failed to create store: %v", err)
	}
	backend.Close()

	color.New(color.FgGreen).Printf("Initialized empty sitedoc workspace in %s/\n", config.WorkspaceDir)
	fmt.Printf("Backend: %s\n", cfg.Backend)
	fmt.Printf("Retention: %d checkpoints per site\n", cfg.Retention)
	fmt.Printf("\nRun 'sitedoc create <site> --owner <user>' to create the first site.\n")
}
