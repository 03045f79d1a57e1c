package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chaz8081/speechbridge/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Host.Addr != config.Default().Host.Addr {
		t.Errorf("Host.Addr = %q, want default", cfg.Host.Addr)
	}
}

func TestLoadConfigExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("host:\n  addr: 127.0.0.1:9999\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Host.Addr != "127.0.0.1:9999" {
		t.Errorf("Host.Addr = %q", cfg.Host.Addr)
	}
}

func TestLoadConfigMissingExplicitPath(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("loadConfig() expected error for missing file")
	}
}

func TestPrintBanner(t *testing.T) {
	cfg := config.Default()
	cfg.Host.AuthToken = "x"

	var buf bytes.Buffer
	printBanner(&buf, cfg, "serve")
	out := buf.String()
	for _, want := range []string{"speechbridge", "deepgram", cfg.Host.Addr, "Auth:       enabled"} {
		if !strings.Contains(out, want) {
			t.Errorf("banner missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Hotkey") {
		t.Error("serve banner shows hotkey")
	}

	buf.Reset()
	printBanner(&buf, cfg, "dictate")
	if !strings.Contains(buf.String(), "ctrl+shift+r") {
		t.Errorf("dictate banner missing hotkey:\n%s", buf.String())
	}
}

func TestInitCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"init"})
	if err := root.Execute(); err != nil {
		t.Fatalf("init error = %v", err)
	}
	if !strings.Contains(out.String(), "Config written to") {
		t.Errorf("output = %q", out.String())
	}
	if _, err := os.Stat(config.DefaultConfigPath()); err != nil {
		t.Errorf("config not written: %v", err)
	}

	root = newRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetArgs([]string{"init"})
	if err := root.Execute(); err != nil {
		t.Fatalf("second init error = %v", err)
	}
	if !strings.Contains(out.String(), "already exists") {
		t.Errorf("output = %q", out.String())
	}
}

func TestSubcommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"serve": false, "dictate": false, "languages": false, "permission": false, "init": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestPermissionCommands(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	configPath = ""
	t.Cleanup(func() { configPath = "" })

	run := func(args ...string) string {
		t.Helper()
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs(args)
		if err := root.Execute(); err != nil {
			t.Fatalf("%v error = %v", args, err)
		}
		return out.String()
	}

	if got := run("permission", "status"); !strings.HasPrefix(got, "undetermined") {
		t.Errorf("status = %q, want undetermined", got)
	}
	run("permission", "grant")
	if got := run("permission", "status"); !strings.HasPrefix(got, "granted") {
		t.Errorf("status after grant = %q", got)
	}
	if got := run("permission", "request"); strings.TrimSpace(got) != "granted" {
		t.Errorf("request = %q, want granted", got)
	}
	run("permission", "revoke")
	if got := run("permission", "status"); !strings.HasPrefix(got, "denied") {
		t.Errorf("status after revoke = %q", got)
	}
}
