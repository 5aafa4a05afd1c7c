package main

import (
	"errors"
	"os"

	"github.com/guillotine/guillotine/node"
)

// ErrConfigFileNotFound is returned by loadNetworkConfig when the named
// network has no config file under ConfigsDir. This is not fatal: the CLI
// falls back to node.DefaultConfig's values for that network.
var ErrConfigFileNotFound = errors.New("guillotine: config file not found")

// loadNetworkConfig reads <configs-dir>/<name>.toml, if present, and merges
// it onto cfg. A missing file is reported via ErrConfigFileNotFound but is
// not itself fatal; a malformed file is.
func loadNetworkConfig(cfg *node.Config) error {
	path := cfg.ConfigFilePath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrConfigFileNotFound
		}
		return err
	}

	parsed, err := node.LoadConfig(data)
	if err != nil {
		return err
	}

	merged := node.MergeNodeConfig(node.DefaultNodeConfig(), parsed)
	cfg.NetworkID = merged.NetworkID
	cfg.SyncMode = merged.SyncMode
	cfg.P2PPort = merged.P2P.Port
	cfg.MaxPeers = merged.P2P.MaxPeers
	cfg.RPCPort = merged.RPC.Port
	cfg.LogLevel = merged.Log.Level
	return nil
}
