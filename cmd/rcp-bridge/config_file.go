package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors appConfig with TOML tags matching the flag names.
// Durations are strings in the file ("3s", "250ms") to keep it hand editable.
type fileConfig struct {
	RadioPath   string `toml:"radio-path"`
	RadioConfig string `toml:"radio-config"`

	Listen  string `toml:"listen"`
	ReadBuf int    `toml:"read-buf"`

	LogFormat string `toml:"log-format"`
	LogLevel  string `toml:"log-level"`
	LogFile   string `toml:"log-file"`

	MetricsAddr     string `toml:"metrics-addr"`
	LogMetricsEvery string `toml:"log-metrics-interval"`

	HubBuffer int    `toml:"hub-buffer"`
	HubPolicy string `toml:"hub-policy"`

	MaxClients   int    `toml:"max-clients"`
	HandshakeTO  string `toml:"handshake-timeout"`
	ClientReadTO string `toml:"client-read-timeout"`

	MdnsEnable bool   `toml:"mdns-enable"`
	MdnsName   string `toml:"mdns-name"`
}

// applyFileConfig loads path and fills every cfg field that is present in the
// file and was not already set by a flag or environment variable.
func applyFileConfig(c *appConfig, path string, set map[string]struct{}) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("config file %s: %v", path, err)
	}
	if und := meta.Undecoded(); len(und) > 0 {
		return fmt.Errorf("config file %s: unknown key %q", path, und[0].String())
	}

	use := func(key string) bool {
		if _, ok := set[key]; ok {
			return false
		}
		return meta.IsDefined(key)
	}
	dur := func(key, v string, dst *time.Duration) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config file %s: %s: %v", path, key, err)
		}
		*dst = d
		return nil
	}

	if use("radio-path") {
		c.radioPath = raw.RadioPath
	}
	if use("radio-config") {
		c.radioConfig = raw.RadioConfig
	}
	if use("listen") {
		c.listenAddr = raw.Listen
	}
	if use("read-buf") {
		c.readBuf = raw.ReadBuf
	}
	if use("log-format") {
		c.logFormat = raw.LogFormat
	}
	if use("log-level") {
		c.logLevel = raw.LogLevel
	}
	if use("log-file") {
		c.logFile = raw.LogFile
	}
	if use("metrics-addr") {
		c.metricsAddr = raw.MetricsAddr
	}
	if use("log-metrics-interval") {
		if err := dur("log-metrics-interval", raw.LogMetricsEvery, &c.logMetricsEvery); err != nil {
			return err
		}
	}
	if use("hub-buffer") {
		c.hubBuffer = raw.HubBuffer
	}
	if use("hub-policy") {
		c.hubPolicy = raw.HubPolicy
	}
	if use("max-clients") {
		c.maxClients = raw.MaxClients
	}
	if use("handshake-timeout") {
		if err := dur("handshake-timeout", raw.HandshakeTO, &c.handshakeTO); err != nil {
			return err
		}
	}
	if use("client-read-timeout") {
		if err := dur("client-read-timeout", raw.ClientReadTO, &c.clientReadTO); err != nil {
			return err
		}
	}
	if use("mdns-enable") {
		c.mdnsEnable = raw.MdnsEnable
	}
	if use("mdns-name") {
		c.mdnsName = raw.MdnsName
	}
	return nil
}
