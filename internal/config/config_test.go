package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pelletier "github.com/pelletier/go-toml/v2"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv(EnvWriteToken, "")
	path := writeConfig(t, `
name = "heritage.alpha"
addr = "127.0.0.1:9443"
cors_origins = ["http://example.test", " "]

[store]
driver = "SQLite"
path = "/var/lib/heritage/h.db"

[media]
max_upload_bytes = 2048

[auth]
write_token = "  tok "
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "heritage.alpha" || cfg.Addr != "127.0.0.1:9443" {
		t.Fatalf("unexpected identity: %+v", cfg)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.Path != "/var/lib/heritage/h.db" {
		t.Fatalf("unexpected store: %+v", cfg.Store)
	}
	if cfg.Media.Root != "local/media" || cfg.Media.MaxUploadBytes != 2048 {
		t.Fatalf("unexpected media: %+v", cfg.Media)
	}
	if cfg.Auth.WriteToken != "tok" {
		t.Fatalf("unexpected token: %q", cfg.Auth.WriteToken)
	}
	if len(cfg.CorsOrigins) != 1 || cfg.CorsOrigins[0] != "http://example.test" {
		t.Fatalf("unexpected cors origins: %v", cfg.CorsOrigins)
	}
	if cfg.Browse.RecentDefault != 3 {
		t.Fatalf("unexpected recent default: %d", cfg.Browse.RecentDefault)
	}
}

func TestLoadEnvTokenWins(t *testing.T) {
	t.Setenv(EnvWriteToken, "from-env")
	cfg, err := Load(writeConfig(t, `
[auth]
write_token = "from-file"
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.WriteToken != "from-env" {
		t.Fatalf("expected env token, got %q", cfg.Auth.WriteToken)
	}
}

func TestLoadRejectsUnknownKeysAndDrivers(t *testing.T) {
	if _, err := Load(writeConfig(t, `adr = ":1"`)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected unknown key error, got %v", err)
	}
	if _, err := Load(writeConfig(t, "[store]\ndriver = \"postgres\"\n")); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected driver error, got %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestWriteTemplateRoundTrips(t *testing.T) {
	t.Setenv(EnvWriteToken, "")
	path := filepath.Join(t.TempDir(), "heritage.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected existing template to be kept")
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	def := Default()
	if cfg.Addr != def.Addr || cfg.Store.Driver != def.Store.Driver || cfg.Media.MaxUploadBytes != def.Media.MaxUploadBytes {
		t.Fatalf("template does not match defaults: %+v", cfg)
	}
}

func TestMarshalRedactsToken(t *testing.T) {
	cfg := Default()
	cfg.Auth.WriteToken = "secret"
	out, err := Marshal(cfg, false)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(out), "secret") {
		t.Fatalf("token leaked: %s", out)
	}
	var back Config
	if err := pelletier.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Auth.WriteToken != "<redacted>" {
		t.Fatalf("unexpected token after redaction: %q", back.Auth.WriteToken)
	}
}
