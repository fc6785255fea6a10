package cli

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/sitedoc/internal/remote"
	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune [site]",
	Short: "Apply checkpoint retention",
	Long: `Delete the oldest checkpoints beyond the retention limit. Writes already
do this; prune is for sites whose retention was lowered. Without a site,
every site is pruned.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runPrune,
}

func runPrune(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if u := serverURL(nil); u != "" {
		admin := remote.NewAdminClient(u, adminToken)
		if len(args) == 1 {
			n, err := admin.PruneSite(ctx, args[0])
			if err != nil {
				exitError("prune failed: %v", err)
			}
			fmt.Printf("%s: pruned %d checkpoint(s)\n", args[0], n)
			return
		}
		res, err := admin.PruneAll(ctx)
		if err != nil {
			exitError("prune failed: %v", err)
		}
		fmt.Printf("Pruned %d checkpoint(s) across %d site(s)\n", res.Pruned, res.Sites)
		if res.Failed > 0 {
			exitError("%d site(s) failed; see server log", res.Failed)
		}
		return
	}

	c := initLocalContext()
	defer c.Close()

	sites := args
	if len(sites) == 0 {
		var err error
		if sites, err = c.Engine.Sites(ctx); err != nil {
			exitError("failed to list sites: %v", err)
		}
	}

	total := 0
	for _, site := range sites {
		n, err := c.Engine.Prune(ctx, site)
		if err != nil {
			exitError("prune %s failed: %v", site, err)
		}
		total += n
	}
	fmt.Printf("Pruned %d checkpoint(s) across %d site(s)\n", total, len(sites))
}
