package cli

import (
	"context"
	"os"

	"github.com/kilupskalvis/sitedoc/internal/config"
	"github.com/kilupskalvis/sitedoc/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "completion [bash|zsh|fish]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for sitedoc.

To load completions:

Bash:
  $ source <(sitedoc completion bash)
  # Or add to ~/.bashrc:
  $ echo 'source <(sitedoc completion bash)' >> ~/.bashrc

Zsh:
  $ source <(sitedoc completion zsh)
  # Or add to ~/.zshrc:
  $ echo 'source <(sitedoc completion zsh)' >> ~/.zshrc

Fish:
  $ sitedoc completion fish | source
  # Or add to config:
  $ sitedoc completion fish > ~/.config/fish/completions/sitedoc.fish
`,
		ValidArgs:             []string{"bash", "zsh", "fish"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		DisableFlagsInUseLine: true,
		Run: func(cmd *cobra.Command, args []string) {
			switch args[0] {
			case "bash":
				rootCmd.GenBashCompletion(os.Stdout)
			case "zsh":
				rootCmd.GenZshCompletion(os.Stdout)
			case "fish":
				rootCmd.GenFishCompletion(os.Stdout, true)
			}
		},
	})

	for _, cmd := range []*cobra.Command{showCmd, patchCmd, historyCmd, restoreCmd, sessionCmd, watchCmd, pruneCmd} {
		cmd.ValidArgsFunction = completeSites
	}
}

// completeSites offers the workspace's site IDs for the first argument.
func completeSites(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := config.LoadWorkspace()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	backend, err := store.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer backend.Close()

	sites, err := backend.ListSites(context.Background())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return sites, cobra.ShellCompDirectiveNoFileComp
}
