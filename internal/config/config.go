package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	pelletier "github.com/pelletier/go-toml/v2"

	"github.com/danmuck/heritagectl/internal/media"
	"github.com/danmuck/heritagectl/internal/store"
)

const EnvWriteToken = "HERITAGE_WRITE_TOKEN"

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	Name        string       `toml:"name"`
	Addr        string       `toml:"addr"`
	CorsOrigins []string     `toml:"cors_origins"`
	Store       StoreConfig  `toml:"store"`
	Media       MediaConfig  `toml:"media"`
	Auth        AuthConfig   `toml:"auth"`
	Browse      BrowseConfig `toml:"browse"`
}

type StoreConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

type MediaConfig struct {
	Root           string `toml:"root"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
}

type AuthConfig struct {
	// WriteToken guards submissions when set; moderation always needs it.
	WriteToken string `toml:"write_token"`
}

type BrowseConfig struct {
	RecentDefault int `toml:"recent_default"`
}

func Default() Config {
	return Config{
		Name:        "heritagectl",
		Addr:        ":8080",
		CorsOrigins: []string{"http://localhost:3000"},
		Store: StoreConfig{
			Driver: store.DriverMemory,
			Path:   store.DefaultSQLitePath,
		},
		Media: MediaConfig{
			Root:           media.DefaultRoot,
			MaxUploadBytes: media.DefaultMaxUploadBytes,
		},
		Browse: BrowseConfig{RecentDefault: store.DefaultRecent},
	}
}

// Load decodes path over Default, applies env overrides, and validates.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalidConfig, path, strings.Join(keys, ", "))
	}
	ApplyEnv(&cfg, os.Getenv)
	Normalize(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ApplyEnv(cfg *Config, getenv func(string) string) {
	if tok := strings.TrimSpace(getenv(EnvWriteToken)); tok != "" {
		cfg.Auth.WriteToken = tok
	}
}

// Normalize trims string fields and fills zero values from Default.
func Normalize(cfg *Config) {
	def := Default()
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	cfg.Store.Path = strings.TrimSpace(cfg.Store.Path)
	cfg.Media.Root = strings.TrimSpace(cfg.Media.Root)
	cfg.Auth.WriteToken = strings.TrimSpace(cfg.Auth.WriteToken)
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = def.Store.Driver
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = def.Store.Path
	}
	if cfg.Media.Root == "" {
		cfg.Media.Root = def.Media.Root
	}
	if cfg.Media.MaxUploadBytes == 0 {
		cfg.Media.MaxUploadBytes = def.Media.MaxUploadBytes
	}
	if cfg.Browse.RecentDefault == 0 {
		cfg.Browse.RecentDefault = def.Browse.RecentDefault
	}
	origins := cfg.CorsOrigins[:0]
	for _, o := range cfg.CorsOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.CorsOrigins = origins
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("%w: missing addr", ErrInvalidConfig)
	}
	switch cfg.Store.Driver {
	case store.DriverMemory:
	case store.DriverSQLite:
		if strings.TrimSpace(cfg.Store.Path) == "" {
			return fmt.Errorf("%w: store.path required for sqlite", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported store.driver %q (expected memory or sqlite)", ErrInvalidConfig, cfg.Store.Driver)
	}
	if cfg.Media.MaxUploadBytes < 0 {
		return fmt.Errorf("%w: media.max_upload_bytes must be positive", ErrInvalidConfig)
	}
	if cfg.Browse.RecentDefault < 0 {
		return fmt.Errorf("%w: browse.recent_default must be positive", ErrInvalidConfig)
	}
	return nil
}

// Marshal renders cfg as TOML. The write token is redacted unless reveal is set.
func Marshal(cfg Config, reveal bool) ([]byte, error) {
	if !reveal && cfg.Auth.WriteToken != "" {
		cfg.Auth.WriteToken = "<redacted>"
	}
	return pelletier.Marshal(cfg)
}

// WriteTemplate writes the default config to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	out, err := Marshal(Default(), true)
	if err != nil {
		return fmt.Errorf("render config template: %w", err)
	}
	return os.WriteFile(path, out, 0o600)
}
