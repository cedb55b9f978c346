package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validDirect = `{
	"endpoint": {
		"base_url": "http://localhost:8080",
		"requests_per_minute": 120
	},
	"tokenizer": {"encoding": "cl100k_base"},
	"run": {"split_count": 2, "batch_size": 10, "concurrent": true}
}`

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse([]byte(validDirect))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Endpoint.BaseURL != "http://localhost:8080" {
		t.Errorf("base url = %q", cfg.Endpoint.BaseURL)
	}
	if cfg.Endpoint.RequestsPerMinute != 120 {
		t.Errorf("requests per minute = %v", cfg.Endpoint.RequestsPerMinute)
	}
	if cfg.Tokenizer.Encoding != "cl100k_base" {
		t.Errorf("encoding = %q", cfg.Tokenizer.Encoding)
	}
	if cfg.Run.SplitCount != 2 || cfg.Run.BatchSize != 10 || !cfg.Run.Concurrent {
		t.Errorf("run = %+v", cfg.Run)
	}
}

func TestParse_CreateSpec(t *testing.T) {
	cfg, err := Parse([]byte(`{
		"endpoint": {
			"control_plane_url": "https://cp.example.com",
			"create": {"name": "eval-run", "repository": "org/model"}
		},
		"tokenizer": {"encoding": "cl100k_base"}
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Endpoint.Create == nil || cfg.Endpoint.Create.Name != "eval-run" {
		t.Errorf("create spec = %+v", cfg.Endpoint.Create)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing tokenizer", `{"endpoint": {"base_url": "x"}}`},
		{"empty encoding", `{"endpoint": {"base_url": "x"}, "tokenizer": {"encoding": ""}}`},
		{"bad split count", `{"endpoint": {"base_url": "x"}, "tokenizer": {"encoding": "e"}, "run": {"split_count": 0}}`},
		{"create missing repository", `{"endpoint": {"control_plane_url": "c", "create": {"name": "n"}}, "tokenizer": {"encoding": "e"}}`},
		{"no endpoint selection", `{"endpoint": {}, "tokenizer": {"encoding": "e"}}`},
		{"two endpoint selections", `{"endpoint": {"base_url": "x", "reuse": "y"}, "tokenizer": {"encoding": "e"}}`},
		{"reuse without control plane", `{"endpoint": {"reuse": "y"}, "tokenizer": {"encoding": "e"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.data)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modelbench.json")
	if err := os.WriteFile(path, []byte(validDirect), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Endpoint.BaseURL == "" {
		t.Error("config not decoded")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
