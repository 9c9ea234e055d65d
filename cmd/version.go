package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/quilt/internal/version"
)

var (
	versionFormat string
	versionShort  bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for quilt.

Examples:
  quilt version                 # Show version and commit
  quilt version --detailed      # Show detailed version info
  quilt version --format json   # Output as JSON`,
	// Version never needs configuration.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
	versionCmd.Flags().Bool("detailed", false, "Show detailed version information")
}

func runVersionCommand(cmd *cobra.Command, _ []string) error {
	detailed, _ := cmd.Flags().GetBool("detailed")
	out := cmd.OutOrStdout()

	switch versionFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(version.GetBuildInfo())
	case "text":
		switch {
		case versionShort:
			_, err := fmt.Fprintln(out, version.GetShortVersion())
			return err
		case detailed:
			_, err := fmt.Fprintln(out, version.GetDetailedVersion())
			return err
		default:
			return outputVersionDefault(out)
		}
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", versionFormat)
	}
}

func outputVersionDefault(out io.Writer) error {
	info := version.GetBuildInfo()

	fmt.Fprintf(out, "quilt %s", info.Version)
	if info.GitCommit != "unknown" && len(info.GitCommit) >= 7 {
		fmt.Fprintf(out, " (%s)", info.GitCommit[:7])
	}
	if info.Dirty {
		fmt.Fprint(out, " (dirty)")
	}
	_, err := fmt.Fprintf(out, "\nGo: %s\nPlatform: %s\n", info.GoVersion, info.Platform)
	return err
}
