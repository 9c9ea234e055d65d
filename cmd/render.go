package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/quilt/internal/engine"
)

var renderCmd = &cobra.Command{
	Use:     "render <page>",
	Aliases: []string{"r"},
	Short:   "Render one page to stdout",
	Long: `Render one page and print the document.

The page is a path to a template file, or to a directory whose default page
is rendered. Relative paths are resolved against the working directory.

Examples:
  quilt render site/blog/index.html
  quilt render site/blog --set title=Draft
  quilt render site/blog --resources     # Print the resource manifest instead`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringToString("set", nil, "Context values given to the page (key=value)")
	renderCmd.Flags().Bool("resources", false, "Print the resource manifest as JSON instead of the document")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, logger, eng, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	addr, err := pageAddress(args[0], cfg.Template.DefaultPage, cfg.Template.TemplateExt)
	if err != nil {
		return err
	}

	set, _ := cmd.Flags().GetStringToString("set")
	data := make(map[string]any, len(set))
	for k, v := range set {
		data[k] = v
	}

	res, err := eng.Render(ctx, addr, engine.Request{Data: data})
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		logger.Warn(ctx, w, "Render warning", "page", addr)
	}

	out := cmd.OutOrStdout()
	if resources, _ := cmd.Flags().GetBool("resources"); resources {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(res.Resources)
	}
	_, err = io.WriteString(out, res.HTML)
	return err
}

// pageAddress turns a command line path into an absolute page address.
// Paths without an extension name a directory and its default page.
func pageAddress(arg, defaultPage, ext string) (string, error) {
	p, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("invalid page path %q: %w", arg, err)
	}
	if filepath.Ext(p) == "" {
		p = filepath.Join(p, defaultPage+ext)
	}
	return filepath.ToSlash(p), nil
}
