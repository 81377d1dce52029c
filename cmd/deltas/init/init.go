// Package initcmder provides the init command for initializing a local .deltas
// directory in the current working directory.
package initcmder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/deltas/pkg/config"
)

const (
	dirName    = ".deltas"
	configFile = "config.toml"

	// maxRemoteConfig bounds the size of a fetched config.toml.
	maxRemoteConfig = 1 << 20
)

const initLongDesc string = `Initialize a new .deltas/ directory in the current working directory.

Creates a local .deltas/ directory that takes precedence over the default
~/.deltas/ directory for configuration and the transcript database.

Use --preset to seed config.toml for a provider, or point it at an http(s)
URL serving a config.toml to fetch a shared configuration. A preset always
rewrites config.toml; a plain init leaves an existing directory untouched.

Examples:
  deltas init
  deltas init --preset anthropic
  deltas init --preset https://example.com/team/config.toml`

const initShortDesc string = "Initialize a local .deltas/ directory"

type initCommander struct {
	preset string
	out    io.Writer
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "",
		fmt.Sprintf("Provider preset (%s) or an http(s) URL to a config.toml",
			strings.Join(config.ValidPresetNames(), ", ")))
	_ = cmd.RegisterFlagCompletionFunc("preset", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.ValidPresetNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func (c *initCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	// Resolve the preset before touching the filesystem so a bad preset
	// leaves nothing behind.
	var cfg *config.Config
	if c.preset != "" {
		cfg, err = c.resolvePreset(ctx)
		if err != nil {
			return err
		}
	}

	info, err := os.Stat(dir)
	exists := err == nil && info.IsDir()
	if exists && cfg == nil {
		fmt.Fprintf(c.out, "Already initialized: %s\n", dir)
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .deltas directory: %w", err)
	}

	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := writeConfig(filepath.Join(dir, configFile), cfg); err != nil {
		return err
	}

	if exists {
		fmt.Fprintf(c.out, "Updated config: %s\n", filepath.Join(dir, configFile))
		return nil
	}
	fmt.Fprintf(c.out, "Initialized .deltas directory: %s\n", dir)
	return nil
}

func (c *initCommander) resolvePreset(ctx context.Context) (*config.Config, error) {
	if strings.HasPrefix(c.preset, "http://") || strings.HasPrefix(c.preset, "https://") {
		return fetchRemoteConfig(ctx, c.preset)
	}
	return config.PresetConfig(c.preset)
}

func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteConfig))
	if err != nil {
		return nil, fmt.Errorf("reading remote config: %w", err)
	}

	cfg, err := config.ParseConfigTOML(data)
	if err != nil {
		return nil, fmt.Errorf("remote config from %s: %w", url, err)
	}
	return cfg, nil
}

func writeConfig(path string, cfg *config.Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
