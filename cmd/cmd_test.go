package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/quilt/internal/assets"
)

func writeSite(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"blog/index.html":         "---\ntitle: Blog\nlayout: true\n---\n{{css \"site.css\"}}<h1>{{title}}</h1>",
		"blog/layouts/index.html": "<main>{{{body}}}</main>",
		"blog/about.html":         "<p>{{greeting}}</p>",
		"blog/plain.html":         "<p>plain</p>",
	}
	for name, text := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(text), 0o644))
	}
	return root
}

// resetFlags puts every flag of the command tree back to its default so
// executions do not leak into each other.
func resetFlags(c *cobra.Command) {
	for _, set := range []*pflag.FlagSet{c.Flags(), c.PersistentFlags()} {
		set.VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else if f.Value.Type() != "stringToString" {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	}
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with fresh configuration state.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	viper.Reset()
	resetFlags(rootCmd)
	cfgFile = ""
	t.Cleanup(viper.Reset)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRenderCommand(t *testing.T) {
	root := writeSite(t)

	out, _, err := execute(t, "render", "--root", root, filepath.Join(root, "blog"))
	require.NoError(t, err)
	assert.Equal(t, `<main><link rel="stylesheet" href="site.css"><h1>Blog</h1></main>`, out)

	out, _, err = execute(t, "render", "--root", root, "--set", "greeting=hi", filepath.Join(root, "blog", "about.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", out)
}

func TestRenderCommandResources(t *testing.T) {
	root := writeSite(t)

	out, _, err := execute(t, "render", "--root", root, "--resources", filepath.Join(root, "blog", "index.html"))
	require.NoError(t, err)

	var manifest assets.Manifest
	require.NoError(t, json.Unmarshal([]byte(out), &manifest))
	require.Len(t, manifest.CSS, 1)
	assert.Equal(t, "site.css", manifest.CSS[0].URL)
}

func TestRenderCommandMissingPage(t *testing.T) {
	root := writeSite(t)

	_, _, err := execute(t, "render", "--root", root, "--resources=false", filepath.Join(root, "nope.html"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.html")
}

func TestBuildCommand(t *testing.T) {
	root := writeSite(t)
	dest := filepath.Join(t.TempDir(), "out")
	manifest := filepath.Join(t.TempDir(), "manifest.db")

	out, _, err := execute(t, "build", "--root", root, "--dest", dest, "--manifest", manifest, "--pages", "**/*.html")
	require.NoError(t, err)
	assert.Contains(t, out, "Built 3 of 3 pages")

	assert.FileExists(t, filepath.Join(dest, "blog", "index.html"))
	assert.FileExists(t, filepath.Join(dest, "blog", "about.html"))
	assert.FileExists(t, filepath.Join(dest, "blog", "plain.html"))
	assert.NoFileExists(t, filepath.Join(dest, "blog", "layouts", "index.html"))

	store, err := assets.OpenStore(manifest)
	require.NoError(t, err)
	defer store.Close()
	pages, err := store.Pages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"blog/about.html", "blog/index.html", "blog/plain.html"}, pages)
}

func TestConfigFile(t *testing.T) {
	root := writeSite(t)
	cfg := filepath.Join(t.TempDir(), "quilt.yml")
	require.NoError(t, os.WriteFile(cfg, []byte("template:\n  root: "+filepath.ToSlash(root)+"\n  default_page: plain\n"), 0o644))

	out, _, err := execute(t, "render", "--config", cfg, filepath.Join(root, "blog"))
	require.NoError(t, err)
	assert.Equal(t, "<p>plain</p>", out)

	_, _, err = execute(t, "render", "--config", filepath.Join(t.TempDir(), "missing.yml"), filepath.Join(root, "blog"))
	assert.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	root := writeSite(t)

	_, _, err := execute(t, "render", "--root", root, "--log-level", "loud", filepath.Join(root, "blog"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log level")
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])

	out, _, err = execute(t, "version", "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "quilt ")

	_, _, err = execute(t, "version", "--format", "xml")
	assert.Error(t, err)
}

func TestPageAddress(t *testing.T) {
	abs, err := filepath.Abs("site")
	require.NoError(t, err)

	got, err := pageAddress("site", "index", ".html")
	require.NoError(t, err)
	assert.Equal(t, filepath.ToSlash(filepath.Join(abs, "index.html")), got)

	got, err = pageAddress("site/post.html", "index", ".html")
	require.NoError(t, err)
	assert.Equal(t, filepath.ToSlash(filepath.Join(abs, "post.html")), got)
}
