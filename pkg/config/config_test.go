package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	valid bool
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	s.valid = true
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "izy")
	path := writeFile(t, "name: ${SAMPLE_NAME}\nport: 80\n")

	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "izy" || s.Port != 80 || !s.valid {
		t.Errorf("got %+v", s)
	}
}

func TestLoadValidationError(t *testing.T) {
	path := writeFile(t, "name: x\n")
	var s sample
	err := Load(path, &s)
	if err == nil || !strings.Contains(err.Error(), "config validation failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var s sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &s); err == nil {
		t.Fatal("expected error for missing file")
	}
	s.Port = 1
	if err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &s); err != nil || !s.valid {
		t.Fatalf("LoadOptional = %v, valid %v", err, s.valid)
	}
}
