package netcache

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

//go:embed shell.toml
var shellTOML []byte

type shellConfig struct {
	Shell struct {
		Assets []string `toml:"assets"`
	} `toml:"shell"`
}

// Manifest is the fixed set of application-shell asset paths.
type Manifest struct {
	assets []string
	byPath map[string]struct{}
}

// DefaultManifest loads the embedded shell manifest, merged with an optional
// user override at ~/.config/storyhive/shell.toml.
func DefaultManifest() (*Manifest, error) {
	var cfg shellConfig
	if err := toml.Unmarshal(shellTOML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing shell.toml: %w", err)
	}

	assets := cfg.Shell.Assets
	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, ".config", "storyhive", "shell.toml")
		if data, err := os.ReadFile(userPath); err == nil {
			var user shellConfig
			if err := toml.Unmarshal(data, &user); err == nil && len(user.Shell.Assets) > 0 {
				assets = user.Shell.Assets
			}
		}
	}
	return NewManifest(assets), nil
}

// NewManifest builds a manifest from explicit asset paths.
func NewManifest(assets []string) *Manifest {
	m := &Manifest{
		assets: assets,
		byPath: make(map[string]struct{}, len(assets)),
	}
	for _, a := range assets {
		m.byPath[a] = struct{}{}
	}
	return m
}

// Assets returns the asset paths in manifest order.
func (m *Manifest) Assets() []string { return m.assets }

// Contains reports whether path is a shell asset.
func (m *Manifest) Contains(path string) bool {
	_, ok := m.byPath[path]
	return ok
}

// Install pre-populates the shell cache with every manifest asset, fetched
// from the shell origin through the base transport. Best-effort: a single
// failed asset is logged and skipped, never fatal.
func (t *Transport) Install(ctx context.Context) error {
	if t.shellHost == "" || t.manifest == nil {
		return nil
	}

	client := &http.Client{Transport: t.base}
	for _, asset := range t.manifest.Assets() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.shellBase+asset, nil)
		if err != nil {
			t.log.Warn().Err(err).Str("asset", asset).Msg("precache request failed")
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			t.log.Warn().Err(err).Str("asset", asset).Msg("precache fetch failed")
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			t.log.Warn().Int("status", resp.StatusCode).Str("asset", asset).Msg("precache fetch rejected")
			continue
		}
		stored, _ := t.storeAndReturn(ShellCacheName, asset, resp)
		stored.Body.Close()
		t.log.Debug().Str("asset", asset).Msg("precached shell asset")
	}
	return nil
}

// Activate deletes every cache that does not match the current identifiers.
// New versions take effect for all callers immediately.
func (t *Transport) Activate() error {
	if err := t.cache.DeleteCachesExcept(ShellCacheName, APICacheName); err != nil {
		return fmt.Errorf("pruning stale caches: %w", err)
	}
	return nil
}
