package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/kilupskalvis/sitedoc/internal/remote"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session <site>",
	Short: "Show the current version and whether you can edit",
	Args:  cobra.ExactArgs(1),
	Run:   runSession,
}

var watchCmd = &cobra.Command{
	Use:   "watch <site>",
	Short: "Follow a site's version changes live",
	Long: `Print every new version of a site as it is written. Needs --url.

Press Ctrl-C to stop.`,
	Args: cobra.ExactArgs(1),
	Run:  runWatch,
}

func runSession(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	s, err := c.Client.Session(context.Background(), args[0])
	if err != nil {
		exitEngineError("failed to get session", err)
	}

	fmt.Printf("Site:    %s\n", s.SiteID)
	fmt.Printf("Version: %d\n", s.CurrentVersion)
	if s.CanEdit {
		color.New(color.FgGreen).Println("You can edit this site")
	} else {
		color.New(color.FgRed).Println("Read-only: you do not own this site")
	}
}

func runWatch(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	if c.Remote == nil {
		exitError("watch needs a server; pass --url")
	}

	cyan := color.New(color.FgCyan)
	err := c.Remote.Watch(cmd.Context(), args[0], func(ev *remote.VersionEvent) error {
		ts := ev.Timestamp
		if t, err := time.Parse(time.RFC3339, ev.Timestamp); err == nil {
			ts = t.Local().Format("15:04:05")
		}
		cyan.Printf("%s ", ts)
		fmt.Printf("%-8s version %d", ev.Event, ev.Version)
		if ev.CheckpointID != "" {
			fmt.Printf(" (checkpoint %s)", shortID(ev.CheckpointID))
		}
		fmt.Println()
		return nil
	})
	if err != nil && cmd.Context().Err() == nil {
		exitEngineError("watch ended", err)
	}
}
