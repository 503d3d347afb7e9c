// Package config loads zhtpd's node configuration: a default YAML file
// merged with an optional environment-specific override and `.env`
// variables, mirroring the teacher's pkg/config loader. Every subsystem
// reads its tunables from the resulting Config rather than scattered
// flags (spec.md §6.5).
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var configLogger = logrus.New()

// SetLogger overrides the package logger.
func SetLogger(l *logrus.Logger) { configLogger = l }

// Environment selects a deployment profile (spec.md §6.5): Development is
// permissive and local-bind, Production is strict and only externally
// accessible when explicitly configured.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the unified configuration for a zhtpd node.
type Config struct {
	Environment Environment `mapstructure:"environment" json:"environment"`

	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	Consensus struct {
		Profile              string `mapstructure:"profile" json:"profile"` // "bootstrap" or "standard"
		MiningIntervalSeconds int    `mapstructure:"mining_interval_seconds" json:"mining_interval_seconds"`
	} `mapstructure:"consensus" json:"consensus"`

	Storage struct {
		ChunkSizeBytes        int    `mapstructure:"chunk_size_bytes" json:"chunk_size_bytes"`
		MaxContentSizeBytes   int64  `mapstructure:"max_content_size_bytes" json:"max_content_size_bytes"`
		CacheBytes            int64  `mapstructure:"cache_bytes" json:"cache_bytes"`
		CachePolicy           string `mapstructure:"cache_policy" json:"cache_policy"` // lru|lfu|fifo|arc
		DNSBindAddr           string `mapstructure:"dns_bind_addr" json:"dns_bind_addr"`
		DNSConfigTTLSeconds   int    `mapstructure:"dns_config_ttl_seconds" json:"dns_config_ttl_seconds"`
		DNSRateLimitPerSecond int    `mapstructure:"dns_rate_limit_per_second" json:"dns_rate_limit_per_second"`
	} `mapstructure:"storage" json:"storage"`

	Discovery struct {
		MDNSEnabled  bool   `mapstructure:"mdns_enabled" json:"mdns_enabled"`
		NATPMPEnabled bool  `mapstructure:"nat_pmp_enabled" json:"nat_pmp_enabled"`
		UPnPEnabled  bool   `mapstructure:"upnp_enabled" json:"upnp_enabled"`
		Rendezvous   string `mapstructure:"rendezvous" json:"rendezvous"`
	} `mapstructure:"discovery" json:"discovery"`

	Transport struct {
		MeshPort                uint16 `mapstructure:"mesh_port" json:"mesh_port"`
		HandshakeTimeoutSeconds int    `mapstructure:"handshake_timeout_seconds" json:"handshake_timeout_seconds"`
	} `mapstructure:"transport" json:"transport"`

	Mesh struct {
		FragmentMTU  int `mapstructure:"fragment_mtu" json:"fragment_mtu"`
		NonceCacheTTLSeconds int `mapstructure:"nonce_cache_ttl_seconds" json:"nonce_cache_ttl_seconds"`
	} `mapstructure:"mesh" json:"mesh"`
}

// defaults applies env's profile defaults before file/env overrides are
// read, so an unset key in the YAML still resolves to a sane value.
func defaults(v *viper.Viper, env Environment) {
	v.SetDefault("environment", string(env))
	v.SetDefault("network.max_peers", 256)
	v.SetDefault("consensus.mining_interval_seconds", 30)
	v.SetDefault("storage.chunk_size_bytes", 1<<20)
	v.SetDefault("storage.cache_bytes", int64(256<<20))
	v.SetDefault("storage.cache_policy", "lru")
	v.SetDefault("storage.dns_config_ttl_seconds", 300)
	v.SetDefault("storage.dns_rate_limit_per_second", 50)
	v.SetDefault("discovery.mdns_enabled", true)
	v.SetDefault("discovery.rendezvous", "zhtp-mesh")
	v.SetDefault("transport.handshake_timeout_seconds", 10)
	v.SetDefault("mesh.fragment_mtu", 1200)
	v.SetDefault("mesh.nonce_cache_ttl_seconds", 300)

	switch env {
	case Production:
		v.SetDefault("network.listen_addr", "0.0.0.0:5300")
		v.SetDefault("consensus.profile", "standard")
		v.SetDefault("storage.dns_bind_addr", "0.0.0.0:53")
		v.SetDefault("discovery.nat_pmp_enabled", true)
		v.SetDefault("discovery.upnp_enabled", true)
		v.SetDefault("transport.mesh_port", 4300)
	default:
		v.SetDefault("network.listen_addr", "127.0.0.1:5300")
		v.SetDefault("consensus.profile", "bootstrap")
		v.SetDefault("storage.dns_bind_addr", "127.0.0.1:5353")
		v.SetDefault("discovery.nat_pmp_enabled", false)
		v.SetDefault("discovery.upnp_enabled", false)
		v.SetDefault("transport.mesh_port", 14300)
	}
}

// Load reads <configDir>/default.{yaml} merged with <configDir>/<env>.yaml
// (if present), applies `.env` overrides via godotenv, and unmarshals the
// result into a Config seeded with env's profile defaults.
func Load(configDir string, env Environment) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		configLogger.WithError(err).Warn("config: .env present but unreadable")
	}

	v := viper.New()
	defaults(v, env)

	v.SetConfigName("default")
	v.AddConfigPath(configDir)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !isNotExist(err) {
			return nil, fmt.Errorf("load default config: %w", err)
		}
		configLogger.Warn("config: no default.yaml found, using built-in defaults")
	}

	if env != "" {
		v.SetConfigName(string(env))
		if err := v.MergeInConfig(); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("merge %s config: %w", env, err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Environment = env
	return &cfg, nil
}

func isNotExist(err error) bool {
	_, ok := err.(viper.ConfigFileNotFoundError)
	return ok
}
