package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/sitedoc/internal/fieldpath"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <site> [field]",
	Short: "Show a site's live document",
	Long: `Show the live document of a site, or a single field of it.

Examples:
  sitedoc show acme
  sitedoc show acme hero.title
  sitedoc show acme sections.0.heading`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runShow,
}

func runShow(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	doc, err := c.Client.Document(context.Background(), args[0])
	if err != nil {
		exitEngineError("failed to read document", err)
	}

	var value any = doc.Content
	if len(args) == 2 {
		p, err := fieldpath.Parse(args[1])
		if err != nil {
			exitError("%v", err)
		}
		if value, err = p.Get(doc.Content); err != nil {
			exitError("%v", err)
		}
	}

	out, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		exitError("failed to encode document: %v", err)
	}

	color.New(color.FgYellow).Printf("site %s ", doc.SiteID)
	color.New(color.FgCyan).Printf("(version %d)\n", doc.Version)
	fmt.Printf("Owner:   %s\n", doc.Owner)
	fmt.Printf("Updated: %s\n\n", doc.UpdatedAt.Local().Format("Mon Jan 2 15:04:05 2006"))
	fmt.Println(string(out))
}
