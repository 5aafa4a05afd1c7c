package main

import "testing"

func TestParseFlagsVersionExitsZero(t *testing.T) {
	_, exit, code := parseFlags([]string{"--version"})
	if !exit || code != 0 {
		t.Errorf("exit=%v code=%d, want exit=true code=0", exit, code)
	}
}

func TestParseFlagsHelpExitsZero(t *testing.T) {
	_, exit, code := parseFlags([]string{"--help"})
	if !exit || code != 0 {
		t.Errorf("exit=%v code=%d, want exit=true code=0", exit, code)
	}
}

func TestParseFlagsHelpVersionConflictExitsTwo(t *testing.T) {
	_, exit, code := parseFlags([]string{"--help", "--version"})
	if !exit || code != 2 {
		t.Errorf("exit=%v code=%d, want exit=true code=2", exit, code)
	}
}

func TestParseFlagsUnknownFlagExitsTwo(t *testing.T) {
	_, exit, code := parseFlags([]string{"--nonsense"})
	if !exit || code != 2 {
		t.Errorf("exit=%v code=%d, want exit=true code=2", exit, code)
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	cfg, exit, _ := parseFlags(nil)
	if exit {
		t.Fatal("expected no exit for empty args")
	}
	if cfg.Network != "mainnet" {
		t.Errorf("Network = %q, want mainnet", cfg.Network)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q, want ./data", cfg.DataDir)
	}
	if cfg.DBDir != "./db" {
		t.Errorf("DBDir = %q, want ./db", cfg.DBDir)
	}
	if cfg.ConfigsDir != "configs" {
		t.Errorf("ConfigsDir = %q, want configs", cfg.ConfigsDir)
	}
}

func TestParseFlagsCLIOverridesDefault(t *testing.T) {
	cfg, exit, _ := parseFlags([]string{"--config=sepolia", "--data-dir=/tmp/foo"})
	if exit {
		t.Fatal("expected no exit")
	}
	if cfg.Network != "sepolia" {
		t.Errorf("Network = %q, want sepolia", cfg.Network)
	}
	if cfg.DataDir != "/tmp/foo" {
		t.Errorf("DataDir = %q, want /tmp/foo", cfg.DataDir)
	}
}
