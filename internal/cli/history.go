package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/kilupskalvis/sitedoc/internal/models"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <site>",
	Short: "Show checkpoint history",
	Long: `Display a site's retained checkpoints, newest first. Each checkpoint
holds the content a write or restore replaced.`,
	Args: cobra.ExactArgs(1),
	Run:  runHistory,
}

var (
	historyOneline bool
	historyLimit   int
	historyOffset  int
)

func init() {
	historyCmd.Flags().BoolVar(&historyOneline, "oneline", false, "Show each checkpoint on a single line")
	historyCmd.Flags().IntVarP(&historyLimit, "n", "n", 0, "Limit the number of checkpoints to show")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "Skip this many newer checkpoints")
}

func runHistory(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	history, err := c.Client.History(context.Background(), args[0], historyLimit, historyOffset)
	if err != nil {
		exitEngineError("failed to get history", err)
	}

	if len(history) == 0 {
		fmt.Println("No checkpoints yet")
		return
	}

	yellow := color.New(color.FgYellow)
	magenta := color.New(color.FgMagenta)

	for _, cp := range history {
		if historyOneline {
			yellow.Printf("%s ", cp.ShortID())
			fmt.Printf("#%d v%d ", cp.Seq, cp.Version)
			if cp.IsBeforeRestore() {
				magenta.Print("[before-restore] ")
			}
			fmt.Println(summarizeChanges(cp.Changes))
			continue
		}

		yellow.Printf("checkpoint %s", cp.ID)
		if cp.IsBeforeRestore() {
			magenta.Print(" [before-restore]")
		}
		fmt.Println()
		fmt.Printf("Seq:     %d\n", cp.Seq)
		fmt.Printf("Version: %d\n", cp.Version)
		fmt.Printf("Date:    %s\n", cp.Timestamp.Local().Format("Mon Jan 2 15:04:05 2006"))
		if cp.RestoredFrom != "" {
			fmt.Printf("Restore: to %s\n", shortID(cp.RestoredFrom))
		}
		if len(cp.Changes) > 0 {
			fmt.Printf("\n    %s\n", summarizeChanges(cp.Changes))
		}
		fmt.Println()
	}
}

func summarizeChanges(changes []models.Change) string {
	if len(changes) == 0 {
		return ""
	}
	fields := make([]string, 0, len(changes))
	for _, ch := range changes {
		fields = append(fields, ch.Field)
	}
	return "changed " + strings.Join(fields, ", ")
}
