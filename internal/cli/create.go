package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/kilupskalvis/sitedoc/internal/config"
	"github.com/kilupskalvis/sitedoc/internal/remote"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var createCmd = &cobra.Command{
	Use:   "create <site>",
	Short: "Create a site document",
	Long: `Create the document for a site at version 1.

Initial content may be given as a JSON or YAML file. Against a server this
uses the admin API and needs --admin-token.

Examples:
  sitedoc create acme --owner alice
  sitedoc create acme --owner alice --file content.yaml
  sitedoc create acme --owner alice --url https://docs.example.com --admin-token $TOKEN`,
	Args: cobra.ExactArgs(1),
	Run:  runCreate,
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List sites",
	Args:  cobra.NoArgs,
	Run:   runSites,
}

var (
	createOwner string
	createFile  string
	adminToken  string
)

func init() {
	createCmd.Flags().StringVar(&createOwner, "owner", "", "Owner of the new site (required)")
	createCmd.Flags().StringVarP(&createFile, "file", "f", "", "Initial content file (.json, .yaml or .yml)")
	createCmd.MarkFlagRequired("owner")

	for _, cmd := range []*cobra.Command{createCmd, sitesCmd, pruneCmd} {
		cmd.Flags().StringVar(&adminToken, "admin-token", os.Getenv(config.EnvPrefix+"ADMIN_TOKEN"),
			"Admin token for server mode (env: SITEDOC_ADMIN_TOKEN)")
	}
}

func runCreate(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	site := args[0]

	var content map[string]any
	if createFile != "" {
		var err error
		content, err = readContentFile(createFile)
		if err != nil {
			exitError("%v", err)
		}
	}

	if u := serverURL(nil); u != "" {
		doc, err := remote.NewAdminClient(u, adminToken).CreateSite(ctx, site, createOwner, content)
		if err != nil {
			exitError("failed to create site: %v", err)
		}
		printCreated(doc.SiteID, doc.Owner)
		return
	}

	c := initLocalContext()
	defer c.Close()

	doc, err := c.Engine.CreateDocument(ctx, site, createOwner, content)
	if err != nil {
		exitError("failed to create site: %v", err)
	}
	printCreated(doc.SiteID, doc.Owner)
}

func printCreated(site, owner string) {
	color.New(color.FgGreen).Printf("Created site %s ", site)
	fmt.Printf("(owner %s, version 1)\n", owner)
}

func runSites(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	var (
		sites []string
		err   error
	)
	if u := serverURL(nil); u != "" {
		sites, err = remote.NewAdminClient(u, adminToken).ListSites(ctx)
	} else {
		c := initLocalContext()
		defer c.Close()
		sites, err = c.Engine.Sites(ctx)
	}
	if err != nil {
		exitError("failed to list sites: %v", err)
	}

	if len(sites) == 0 {
		fmt.Println("No sites yet")
		return
	}
	for _, s := range sites {
		fmt.Println(s)
	}
}

// readContentFile loads a content tree from a JSON or YAML file. JSON is a
// subset of YAML, so both go through the YAML decoder.
func readContentFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("unsupported content format %q", ext)
	}

	var content map[string]any
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return content, nil
}
