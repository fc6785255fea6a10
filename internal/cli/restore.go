package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <site> <checkpoint>",
	Short: "Restore a site to a checkpoint",
	Long: `Replace a site's content with a retained checkpoint's content.

The checkpoint is given by ID or by sequence number as shown in
'sitedoc history'. The current content is saved as a before-restore
checkpoint first, so a restore can itself be undone.`,
	Args: cobra.ExactArgs(2),
	Run:  runRestore,
}

func runRestore(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	site, ref := args[0], args[1]
	res, err := c.Client.Restore(context.Background(), site, ref)
	if err != nil {
		exitEngineError("restore failed", err)
	}

	color.New(color.FgGreen).Printf("Restored %s to checkpoint %s", site, shortID(res.CheckpointID))
	fmt.Printf(" (now version %d)\n", res.Version)
	fmt.Printf("Previous content saved as checkpoint %s\n", shortID(res.BackupID))
}
