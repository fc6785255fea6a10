package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/kilupskalvis/sitedoc/internal/models"
	"github.com/spf13/cobra"
)

var patchCmd = &cobra.Command{
	Use:   "patch <site> <field=value>...",
	Short: "Write field changes to a site",
	Long: `Write one or more field changes to a site's document as a single batch.

Values are parsed as JSON when they are valid JSON and taken as strings
otherwise. The batch is checked against --version; when it is omitted the
current version is read first. Either every change applies or none does.

Examples:
  sitedoc patch acme hero.title="Fresh bread daily"
  sitedoc patch acme --version 4 sections.0.visible=false hero.count=3
  sitedoc patch acme --file changes.json`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPatch,
}

var (
	patchVersion int64
	patchFile    string
)

func init() {
	patchCmd.Flags().Int64Var(&patchVersion, "version", 0, "Base version the changes were made against")
	patchCmd.Flags().StringVarP(&patchFile, "file", "f", "", `JSON file holding [{"field": ..., "value": ...}]`)
}

func runPatch(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	site := args[0]

	changes, err := parseAssignments(args[1:])
	if err != nil {
		exitError("%v", err)
	}
	if patchFile != "" {
		fromFile, err := readChangesFile(patchFile)
		if err != nil {
			exitError("%v", err)
		}
		changes = append(changes, fromFile...)
	}
	if len(changes) == 0 {
		exitError("no changes given")
	}

	c := initContext()
	defer c.Close()

	version := patchVersion
	if version == 0 {
		s, err := c.Client.Session(ctx, site)
		if err != nil {
			exitEngineError("failed to read session", err)
		}
		version = s.CurrentVersion
	}

	res, err := c.Client.Patch(ctx, site, version, changes)
	if err != nil {
		exitEngineError("patch rejected", err)
	}

	color.New(color.FgGreen).Printf("%s: version %d -> %d", site, version, res.Version)
	fmt.Printf(" (%d change(s), checkpoint %s)\n", len(changes), shortID(res.CheckpointID))
}

// parseAssignments turns field=value arguments into changes.
func parseAssignments(args []string) ([]models.Change, error) {
	changes := make([]models.Change, 0, len(args))
	for _, arg := range args {
		field, raw, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		changes = append(changes, models.Change{Field: field, Value: parseValue(raw)})
	}
	return changes, nil
}

// parseValue decodes raw as JSON, falling back to the literal string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func readChangesFile(path string) ([]models.Change, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var changes []models.Change
	if err := json.Unmarshal(data, &changes); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return changes, nil
}
