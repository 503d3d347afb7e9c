package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesEnvironmentDefaultsWithNoFileOnDisk(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir, Development)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != Development {
		t.Fatalf("expected development environment, got %s", cfg.Environment)
	}
	if cfg.Consensus.Profile != "bootstrap" {
		t.Fatalf("expected bootstrap profile for development, got %s", cfg.Consensus.Profile)
	}
	if cfg.Network.ListenAddr != "127.0.0.1:5300" {
		t.Fatalf("expected local bind for development, got %s", cfg.Network.ListenAddr)
	}
}

func TestLoadProductionDefaultsDifferFromDevelopment(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir, Production)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Consensus.Profile != "standard" {
		t.Fatalf("expected standard profile for production, got %s", cfg.Consensus.Profile)
	}
	if cfg.Network.ListenAddr != "0.0.0.0:5300" {
		t.Fatalf("expected externally bound listen addr for production, got %s", cfg.Network.ListenAddr)
	}
	if !cfg.Discovery.UPnPEnabled {
		t.Fatal("expected upnp enabled in production profile")
	}
}

func TestLoadMergesDefaultYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("network:\n  max_peers: 7\nstorage:\n  cache_policy: arc\n")
	if err := os.WriteFile(filepath.Join(dir, "default.yaml"), yaml, 0o600); err != nil {
		t.Fatalf("write default.yaml: %v", err)
	}

	cfg, err := Load(dir, Development)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Network.MaxPeers != 7 {
		t.Fatalf("expected max_peers 7 from file override, got %d", cfg.Network.MaxPeers)
	}
	if cfg.Storage.CachePolicy != "arc" {
		t.Fatalf("expected arc cache policy from file override, got %s", cfg.Storage.CachePolicy)
	}
}

func TestLoadMergesEnvironmentSpecificFileOverDefaultFile(t *testing.T) {
	dir := t.TempDir()
	defaultYAML := []byte("network:\n  max_peers: 7\n")
	prodYAML := []byte("network:\n  max_peers: 500\n")
	if err := os.WriteFile(filepath.Join(dir, "default.yaml"), defaultYAML, 0o600); err != nil {
		t.Fatalf("write default.yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "production.yaml"), prodYAML, 0o600); err != nil {
		t.Fatalf("write production.yaml: %v", err)
	}

	cfg, err := Load(dir, Production)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Network.MaxPeers != 500 {
		t.Fatalf("expected environment-specific override to win, got %d", cfg.Network.MaxPeers)
	}
}
