package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliTestEnv struct {
	root       string
	configPath string
	corpusDir  string
	storePath  string
}

func setupCLITestEnv(t *testing.T) cliTestEnv {
	t.Helper()

	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("LICENSES_THRESHOLD", "")
	t.Setenv("LICENSES_CORPUS_DIR", "")

	env := cliTestEnv{
		root:       root,
		configPath: filepath.Join(root, "config.toml"),
		corpusDir:  filepath.Join(root, "corpus"),
		storePath:  filepath.Join(root, "licenses.db"),
	}
	writeTestConfig(t, env)
	return env
}

func writeTestConfig(t *testing.T, env cliTestEnv) {
	t.Helper()
	content := fmt.Sprintf(
		"[engine]\nworkers = 2\n\n[corpus]\ndir = %q\nbuiltin = true\n\n[store]\nenabled = true\npath = %q\n\n[logging]\nlevel = \"error\"\n",
		env.corpusDir,
		env.storePath,
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func builtinText(t *testing.T, id string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "internal", "corpus", "builtin", id+".txt"))
	if err != nil {
		t.Fatalf("read builtin %s: %v", id, err)
	}
	return string(data)
}

// writeScrapedDump writes a scraper dump with one license file per entry of
// texts, keyed by package name.
func writeScrapedDump(t *testing.T, dir string, texts map[string]string) string {
	t.Helper()
	type file struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	type dep struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Files   []file `json:"files"`
	}
	var deps []dep
	for name, text := range texts {
		deps = append(deps, dep{Name: name, Version: "1.0.0", Files: []file{{Path: "LICENSE", Content: text}}})
	}
	data, err := json.Marshal(map[string]any{"dependencies": deps})
	if err != nil {
		t.Fatalf("marshal dump: %v", err)
	}
	path := filepath.Join(dir, "scraped.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write dump: %v", err)
	}
	return path
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
