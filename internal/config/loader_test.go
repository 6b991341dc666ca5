package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("unexpected error writing fixture: %v", err)
	}
	return path
}

func TestLoadRawParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "base.yaml", "server:\n  addr: \":8080\"\n")

	raw, err := LoadRaw(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	server, ok := raw["server"].(map[string]any)
	if !ok || server["addr"] != ":8080" {
		t.Fatalf("unexpected raw config: %+v", raw)
	}
}

func TestLoadRawResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "mongo:\n  database: base_db\n")
	path := writeFile(t, dir, "main.yaml", "$include: base.yaml\nserver:\n  addr: \":9090\"\n")

	raw, err := LoadRaw(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mongo, ok := raw["mongo"].(map[string]any)
	if !ok || mongo["database"] != "base_db" {
		t.Fatalf("expected the included mongo section to merge in, got %+v", raw)
	}
	server, ok := raw["server"].(map[string]any)
	if !ok || server["addr"] != ":9090" {
		t.Fatalf("expected the including file's own fields to survive merge, got %+v", raw)
	}
}

func TestLoadRawDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "$include: b.yaml\n")
	path := writeFile(t, dir, "b.yaml", "$include: a.yaml\n")

	if _, err := LoadRaw(path); err == nil {
		t.Fatalf("expected an include cycle to be detected")
	}
}

func TestLoadRawExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_MONGO_URL", "mongodb://from-env/db")
	dir := t.TempDir()
	path := writeFile(t, dir, "base.yaml", "mongo:\n  url: \"${TEST_MONGO_URL}\"\n")

	raw, err := LoadRaw(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mongo := raw["mongo"].(map[string]any)
	if mongo["url"] != "mongodb://from-env/db" {
		t.Fatalf("expected env expansion, got %+v", mongo)
	}
}

func TestLoadRawRejectsEmptyPath(t *testing.T) {
	if _, err := LoadRaw("  "); err == nil {
		t.Fatalf("expected an empty path to error")
	}
}

func TestLoadAppliesResearchKillSwitchDefaultWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "base.yaml", "server:\n  addr: \":8080\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Research.KillSwitch {
		t.Fatalf("expected the research kill switch to default to true when unset")
	}
}

func TestLoadHonorsExplicitResearchSection(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "base.yaml", "research:\n  kill_switch: false\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Research.KillSwitch {
		t.Fatalf("expected an explicit false kill_switch to be honored")
	}
}

func TestLoadRejectsShortSecretKey(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "base.yaml", "auth:\n  secret_key: short\n")

	if _, err := Load(path); err == nil {
		t.Fatalf("expected Load to enforce the secret key length invariant")
	}
}
