// Package cli implements the command-line interface for sitedoc.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/kilupskalvis/sitedoc/internal/auth"
	"github.com/kilupskalvis/sitedoc/internal/config"
	"github.com/kilupskalvis/sitedoc/internal/core"
	"github.com/kilupskalvis/sitedoc/internal/remote"
	"github.com/kilupskalvis/sitedoc/internal/store"
	"github.com/spf13/cobra"
)

// Global connection flags.
var (
	flagURL    string
	flagToken  string
	flagCaller string
)

// cmdContext holds common resources for CLI commands. Exactly one of
// Engine (local workspace) or Remote (server) is set.
type cmdContext struct {
	Config  *config.Config
	Backend store.Backend
	Engine  *core.Engine
	Remote  *remote.HTTPClient
	Client  remote.SiteClient
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Backend != nil {
		c.Backend.Close()
	}
}

// initContext opens the workspace engine, or a server client when --url is
// set. Remote reads are retried; writes are not.
func initContext() *cmdContext {
	if u := serverURL(nil); u != "" {
		hc := remote.NewHTTPClient(u, flagToken)
		return &cmdContext{Remote: hc, Client: remote.NewRetryClient(hc, nil)}
	}

	c := initLocalContext()
	if u := serverURL(c.Config); u != "" {
		c.Close()
		hc := remote.NewHTTPClient(u, flagToken)
		return &cmdContext{Config: c.Config, Remote: hc, Client: remote.NewRetryClient(hc, nil)}
	}
	c.Client = &localClient{engine: c.Engine, caller: flagCaller}
	return c
}

// initLocalContext opens the workspace config, backend and engine.
func initLocalContext() *cmdContext {
	cfg, err := config.LoadWorkspace()
	if err != nil {
		exitError("%v", err)
	}

	backend, err := store.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		exitError("failed to open store: %v", err)
	}

	engine := core.New(backend, auth.DocumentOwners{Backend: backend}, &core.Options{
		Retention:    cfg.Retention,
		HistoryLimit: cfg.HistoryLimit,
		Logger:       cfg.Logger(io.Discard),
	})

	return &cmdContext{Config: cfg, Backend: backend, Engine: engine}
}

// serverURL returns the --url flag, SITEDOC_URL, or the workspace url.
func serverURL(cfg *config.Config) string {
	if flagURL != "" {
		return flagURL
	}
	if v := os.Getenv(config.EnvPrefix + "URL"); v != "" {
		return v
	}
	if cfg != nil {
		return cfg.URL
	}
	return ""
}

var rootCmd = &cobra.Command{
	Use:   "sitedoc",
	Short: "Versioned site documents",
	Long: `sitedoc keeps the editable content of each site as a versioned JSON
document. Writes are checked against the version they were based on, every
write keeps a checkpoint of the state it replaced, and any retained
checkpoint can be restored.

Commands work on the local workspace (.sitedoc/) unless --url points them
at a sitedoc server.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which long-running
// commands watch for cancellation.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagURL, "url", "", "Server base URL (env: SITEDOC_URL)")
	pf.StringVar(&flagToken, "token", os.Getenv(config.EnvPrefix+"TOKEN"), "Bearer token for the server (env: SITEDOC_TOKEN)")
	pf.StringVar(&flagCaller, "as", os.Getenv(config.EnvPrefix+"USER"), "Caller identity for local commands (env: SITEDOC_USER)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(sitesCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(patchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(serverCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// exitEngineError prints err with a hint for the common editor failures.
func exitEngineError(action string, err error) {
	var (
		localConflict  *core.ConflictError
		remoteConflict *remote.ConflictError
	)
	switch {
	case errors.As(err, &localConflict):
		printConflict(localConflict.Current)
	case errors.As(err, &remoteConflict):
		printConflict(remoteConflict.CurrentVersion)
	case errors.Is(err, core.ErrForbidden), isRemoteCode(err, remote.CodeForbidden):
		fmt.Fprintln(os.Stderr, "hint: only the site owner may do this; pass --as or --token")
	}
	exitError("%s: %v", action, err)
}

func isRemoteCode(err error, code string) bool {
	var re *remote.RemoteError
	return errors.As(err, &re) && re.Code == code
}

func printConflict(current int64) {
	color.New(color.FgYellow).Fprintf(os.Stderr, "the document changed since your base version; it is now at version %d\n", current)
	fmt.Fprintf(os.Stderr, "hint: re-run with --version %d after reviewing 'sitedoc show'\n", current)
}

// shortID returns the last 8 characters of a checkpoint ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
