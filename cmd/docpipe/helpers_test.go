package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docpipe/internal/config"
	"docpipe/internal/pipeline"
	"docpipe/internal/testsupport"
)

const sampleText = "Cliente: Mario Rossi\nPolizza RCA n. 123 emessa il 01/02/2024\n"

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "error"
	base := filepath.Dir(cfg.Paths.OutputRoot)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) writeInput(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.baseDir, name)
	testsupport.WriteText(t, path, sampleText)
	return path
}

func runCLI(t *testing.T, args []string, configPath string, gen pipeline.Generator) (string, string, error) {
	t.Helper()
	var opts []pipeline.Option
	if gen != nil {
		opts = append(opts, pipeline.WithGenerator(gen))
	}
	cmd := newRootCommandWith(opts...)
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

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got: %s", needle, haystack)
	}
}
