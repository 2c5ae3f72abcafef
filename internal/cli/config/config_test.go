package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bare host and port",
			input:    "localhost:8080",
			expected: "http://localhost:8080",
		},
		{
			name:     "http url unchanged",
			input:    "http://localhost:8080",
			expected: "http://localhost:8080",
		},
		{
			name:     "https url unchanged",
			input:    "https://api.acme.dev",
			expected: "https://api.acme.dev",
		},
		{
			name:     "trailing slash stripped",
			input:    "https://api.acme.dev/",
			expected: "https://api.acme.dev",
		},
		{
			name:     "bare hostname",
			input:    "api.acme.dev",
			expected: "http://api.acme.dev",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeURL(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Servers = []Server{
		{URL: "https://api.acme.dev", Alias: "production"},
		{URL: "http://localhost:8080", Alias: "local"},
	}
	cfg.Firebase.APIKey = "test-api-key"
	cfg.Supabase.ProjectURL = "https://proj.supabase.co"

	path := filepath.Join(dir, ConfigFileName)
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(loaded.Servers))
	}
	if loaded.Servers[0].Alias != "production" {
		t.Errorf("alias = %q, want %q", loaded.Servers[0].Alias, "production")
	}
	if loaded.Firebase.APIKey != "test-api-key" {
		t.Errorf("firebase api key = %q, want %q", loaded.Firebase.APIKey, "test-api-key")
	}
	if loaded.Supabase.ProjectURL != "https://proj.supabase.co" {
		t.Errorf("supabase project url = %q", loaded.Supabase.ProjectURL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), ConfigFileName))
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestFindConfigFile_WalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	cfgPath := filepath.Join(root, ConfigFileName)
	if err := Save(cfgPath, DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	t.Chdir(nested)

	found, err := FindConfigFile()
	if err != nil {
		t.Fatalf("FindConfigFile failed: %v", err)
	}

	// Resolve symlinks so the comparison works on macOS temp dirs
	wantPath, _ := filepath.EvalSymlinks(cfgPath)
	gotPath, _ := filepath.EvalSymlinks(found)
	if gotPath != wantPath {
		t.Errorf("found = %q, want %q", gotPath, wantPath)
	}
}

func TestGetServerByAlias(t *testing.T) {
	cfg := &Config{
		Servers: []Server{
			{URL: "https://api.acme.dev", Alias: "production"},
			{URL: "http://localhost:8080", Alias: "local"},
		},
	}

	server, err := cfg.GetServerByAlias("local")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if server.URL != "http://localhost:8080" {
		t.Errorf("url = %q, want %q", server.URL, "http://localhost:8080")
	}

	if _, err := cfg.GetServerByAlias("missing"); err == nil {
		t.Error("expected error for unknown alias")
	}
}

func TestGetDefaultServer(t *testing.T) {
	t.Run("single server", func(t *testing.T) {
		cfg := &Config{Servers: []Server{{URL: "http://localhost:8080", Alias: "local"}}}
		server, err := cfg.GetDefaultServer()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if server.Alias != "local" {
			t.Errorf("alias = %q, want %q", server.Alias, "local")
		}
	})

	t.Run("no servers", func(t *testing.T) {
		cfg := &Config{}
		if _, err := cfg.GetDefaultServer(); err == nil {
			t.Error("expected error for empty server list")
		}
	})
}
