package wllconfig

import (
	"path/filepath"
	"testing"

	"github.com/worldline-vcs/wll/internal/gate"
)

func TestLoadLayersGlobalThenRepoThenEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	repoDir := filepath.Join(t.TempDir(), "repo")

	global := &Config{User: UserConfig{Name: "Global Name", Email: "global@example.com"}, Core: CoreConfig{Dir: repoDir}}
	if err := SaveGlobal(global); err != nil {
		t.Fatalf("save global: %v", err)
	}

	repo := &Config{User: UserConfig{Email: "repo@example.com"}, Core: CoreConfig{Dir: repoDir, Compression: "gzip"}}
	if err := SaveRepo(repoDir, repo); err != nil {
		t.Fatalf("save repo: %v", err)
	}

	t.Setenv("WLL_AUTHOR_NAME", "Env Name")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.User.Name != "Env Name" {
		t.Fatalf("expected env var to win for name, got %q", cfg.User.Name)
	}
	if cfg.User.Email != "repo@example.com" {
		t.Fatalf("expected repo config to win over global for email, got %q", cfg.User.Email)
	}
	if cfg.Core.Compression != "gzip" {
		t.Fatalf("expected repo compression setting, got %q", cfg.Core.Compression)
	}
}

func TestAuthorFailsClosedWithoutIdentity(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := cfg.Author(); err == nil {
		t.Fatal("expected Author() to fail when user.name/email are unset")
	}
	cfg.User = UserConfig{Name: "A", Email: "a@example.com"}
	author, err := cfg.Author()
	if err != nil {
		t.Fatalf("author: %v", err)
	}
	if author != "A <a@example.com>" {
		t.Fatalf("unexpected author format: %q", author)
	}
}

func TestNoColorEnvVarIsHonored(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.NoColor {
		t.Fatal("expected NO_COLOR to set cfg.NoColor")
	}
}

func TestPipelineConfigRoundTripsThroughYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	cfg := gate.PipelineConfig{Rules: []gate.RuleConfig{
		{Name: "RequireIntent"},
		{Name: "MaxSizeLimit", Params: map[string]any{"bytes": 1024}},
	}}
	if err := SavePipelineConfig(path, cfg); err != nil {
		t.Fatalf("save pipeline config: %v", err)
	}

	loaded, err := LoadPipelineConfig(path)
	if err != nil {
		t.Fatalf("load pipeline config: %v", err)
	}
	if len(loaded.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(loaded.Rules))
	}
	if loaded.Rules[0].Name != "RequireIntent" {
		t.Fatalf("expected first rule RequireIntent, got %q", loaded.Rules[0].Name)
	}
}

func TestLoadPipelineConfigMissingFileFails(t *testing.T) {
	_, err := LoadPipelineConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected missing pipeline config file to error")
	}
}
