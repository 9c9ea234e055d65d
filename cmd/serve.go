package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/quilt/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the preview server with live reload",
	Long: `Start the preview server.

Requests for a directory render its default page, requests for a template
render that template, and everything else is served as a static file from
the template root. Template, data and helper changes invalidate the caches
and reload connected browsers.

Examples:
  quilt serve                     # Serve the current directory on :8080
  quilt serve -r site -p 3000     # Serve ./site on :3000
  quilt serve --watch=false       # Serve without watching for changes`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Bool("live-reload", true, "Reload browsers when files change")
	serveCmd.Flags().BoolP("watch", "w", true, "Watch the template root for changes")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, eng, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "Serving templates", "root", cfg.Template.Root, "live_reload", cfg.Server.LiveReload, "watch", cfg.Server.Watch)
	return server.New(cfg, eng, logger).Start(ctx)
}
