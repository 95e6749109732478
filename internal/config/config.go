// Package config loads the on-disk description of a GroupHost: the local
// node's identity, listen address, data directory, and the set of Raft
// groups it runs — each with its static member list and timing knobs
// (spec.md §6), loaded with gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// GroupConfig is one Raft group's on-disk configuration.
type GroupConfig struct {
	GroupID           uint64            `yaml:"groupId"`
	Members           map[uint64]string `yaml:"members"`
	Observer          bool              `yaml:"observer,omitempty"`
	DataDir           string            `yaml:"dataDir"`
	ElectTimeout      time.Duration     `yaml:"electTimeout,omitempty"`
	HeartbeatInterval time.Duration     `yaml:"heartbeatInterval,omitempty"`
	RPCTimeout        time.Duration     `yaml:"rpcTimeout,omitempty"`
	MaxAppendBatch    int               `yaml:"maxAppendBatch,omitempty"`
}

// Config is the top-level document loaded from a raftd YAML file.
type Config struct {
	NodeID      uint64        `yaml:"nodeId"`
	ListenAddr  string        `yaml:"listenAddr"`
	DialTimeout time.Duration `yaml:"dialTimeout,omitempty"`
	Groups      []GroupConfig `yaml:"groups"`
}

// Load parses a Config from path. It does not apply defaults — that is
// GroupConfig's own withDefaults/Option concern on the consuming side, the
// same split the root package draws between newHostConfig/newGroupConfig
// and the caller's Option list.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(buf, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if c.NodeID == 0 {
		return nil, fmt.Errorf("config: nodeId is required")
	}
	for _, g := range c.Groups {
		if _, ok := g.Members[c.NodeID]; !ok {
			return nil, fmt.Errorf("config: group %d does not list this host's nodeId %d as a member", g.GroupID, c.NodeID)
		}
	}
	return &c, nil
}
