package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesDirectivesByCfgTag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peadb.conf")
	contents := "# a comment\nport 7000\nbind 0.0.0.0\nappendonly yes\nmin-replicas-to-write 2\nsave 900 1 300 10\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	props, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if props.Port != 7000 {
		t.Errorf("Port = %d, want 7000", props.Port)
	}
	if props.Bind != "0.0.0.0" {
		t.Errorf("Bind = %q, want %q", props.Bind, "0.0.0.0")
	}
	if !props.AppendOnly {
		t.Errorf("AppendOnly = false, want true")
	}
	if props.MinReplicasToWrite != 2 {
		t.Errorf("MinReplicasToWrite = %d, want 2", props.MinReplicasToWrite)
	}
	if props.CfPath != path {
		t.Errorf("CfPath = %q, want %q", props.CfPath, path)
	}
}

func TestLoadKeepsDefaultsForUnsetDirectives(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peadb.conf")
	if err := os.WriteFile(path, []byte("port 6380\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	props, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if props.ReplicaServeStaleData != "yes" {
		t.Errorf("ReplicaServeStaleData = %q, want default %q", props.ReplicaServeStaleData, "yes")
	}
	if props.Databases != 16 {
		t.Errorf("Databases = %d, want default 16", props.Databases)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.conf")); err == nil {
		t.Error("Load of a missing file returned nil error")
	}
}
