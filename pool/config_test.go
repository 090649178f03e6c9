package pool

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "capsule.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoad_FullConfig(t *testing.T) {
	dir := writeConfig(t, `
[pool]
serializer = "wire"
workers = 4
database = "cache.db"
max-frame = 1048576

[log]
verbosity = 2
`)
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Pool.Serializer != SerializerWire || c.Pool.Workers != 4 {
		t.Errorf("pool section: %+v", c.Pool)
	}
	if c.Pool.Database != "cache.db" || c.Pool.MaxFrame != 1048576 {
		t.Errorf("pool section: %+v", c.Pool)
	}
	if c.Log.Verbosity != 2 {
		t.Errorf("log section: %+v", c.Log)
	}
	if !filepath.IsAbs(c.Dir) {
		t.Errorf("Dir not absolute: %q", c.Dir)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := writeConfig(t, "[pool]\n")
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Pool.Serializer != SerializerCapsule {
		t.Errorf("default serializer: %q", c.Pool.Serializer)
	}
	if c.Pool.Workers != 1 || c.Pool.MaxFrame != 64<<20 {
		t.Errorf("defaults: %+v", c.Pool)
	}
}

func TestLoad_UnknownSerializer(t *testing.T) {
	dir := writeConfig(t, "[pool]\nserializer = \"pickle\"\n")
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "unknown serializer") {
		t.Errorf("Load: got %v, want unknown serializer error", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load succeeded without capsule.toml")
	}
}

func TestEffectiveSerializer_EnvWins(t *testing.T) {
	c := Default()

	t.Setenv(EnvSerializer, SerializerWire)
	if got := c.EffectiveSerializer(); got != SerializerWire {
		t.Errorf("env override: got %q", got)
	}

	// An unknown value in the environment falls back to the file.
	t.Setenv(EnvSerializer, "pickle")
	if got := c.EffectiveSerializer(); got != SerializerCapsule {
		t.Errorf("bad env value: got %q", got)
	}
}
