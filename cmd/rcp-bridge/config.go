package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// appConfig carries everything main needs to wire the bridge together.
// Precedence: command line flags beat RCP_BRIDGE_* environment variables,
// which beat the optional TOML config file, which beats the defaults below.
type appConfig struct {
	radioPath   string
	radioConfig string

	listenAddr string
	readBuf    int

	logFormat string
	logLevel  string
	logFile   string

	metricsAddr     string
	logMetricsEvery time.Duration

	hubBuffer int
	hubPolicy string

	maxClients   int
	handshakeTO  time.Duration
	clientReadTO time.Duration

	mdnsEnable bool
	mdnsName   string

	configFile string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}

	flag.StringVar(&cfg.radioPath, "radio-path", "/dev/ttyACM0", "radio device (serial port, PTY or a socket path)")
	flag.StringVar(&cfg.radioConfig, "radio-config", "115200", "radio device configuration (baud rate for serial ports)")
	flag.StringVar(&cfg.listenAddr, "listen", ":20555", "TCP listen address for bridge clients")
	flag.IntVar(&cfg.readBuf, "read-buf", 4096, "per client TCP read buffer size in bytes")
	flag.StringVar(&cfg.logFormat, "log-format", "text", "log format: text or json")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flag.StringVar(&cfg.logFile, "log-file", "", "log to this file with size based rotation instead of stderr")
	flag.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (empty disables)")
	flag.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "log a metrics snapshot at this interval (0 disables)")
	flag.IntVar(&cfg.hubBuffer, "hub-buffer", 512, "per client outbound frame queue length")
	flag.StringVar(&cfg.hubPolicy, "hub-policy", "drop", "slow client policy: drop or kick")
	flag.IntVar(&cfg.maxClients, "max-clients", 0, "maximum concurrent clients (0 means unlimited)")
	flag.DurationVar(&cfg.handshakeTO, "handshake-timeout", 3*time.Second, "client handshake timeout")
	flag.DurationVar(&cfg.clientReadTO, "client-read-timeout", 60*time.Second, "client read deadline")
	flag.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "announce the bridge over mDNS")
	flag.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default rcp-bridge-<hostname>)")
	flag.StringVar(&cfg.configFile, "config", "", "TOML config file (lowest precedence)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	set := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = struct{}{} })

	if err := applyEnvOverrides(cfg, set); err != nil {
		fmt.Fprintf(os.Stderr, "rcp-bridge: %v\n", err)
		os.Exit(2)
	}
	if cfg.configFile != "" {
		if err := applyFileConfig(cfg, cfg.configFile, set); err != nil {
			fmt.Fprintf(os.Stderr, "rcp-bridge: %v\n", err)
			os.Exit(2)
		}
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "rcp-bridge: %v\n", err)
		os.Exit(2)
	}
	return cfg, *showVersion
}

// applyEnvOverrides fills cfg fields from RCP_BRIDGE_* variables unless the
// matching flag was given on the command line. Applied variables are recorded
// in set so the config file stage skips them too.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error

	get := func(flagName, envName string) (string, bool) {
		if _, ok := set[flagName]; ok {
			return "", false
		}
		v, ok := os.LookupEnv(envName)
		if !ok {
			return "", false
		}
		set[flagName] = struct{}{}
		return strings.TrimSpace(v), true
	}
	str := func(flagName, envName string, dst *string) {
		if v, ok := get(flagName, envName); ok {
			*dst = v
		}
	}
	num := func(flagName, envName string, dst *int) {
		if v, ok := get(flagName, envName); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %v", envName, err)
				}
				return
			}
			*dst = n
		}
	}
	dur := func(flagName, envName string, dst *time.Duration) {
		if v, ok := get(flagName, envName); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %v", envName, err)
				}
				return
			}
			*dst = d
		}
	}
	boolean := func(flagName, envName string, dst *bool) {
		if v, ok := get(flagName, envName); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %v", envName, err)
				}
				return
			}
			*dst = b
		}
	}

	str("radio-path", "RCP_BRIDGE_RADIO_PATH", &c.radioPath)
	str("radio-config", "RCP_BRIDGE_RADIO_CONFIG", &c.radioConfig)
	str("listen", "RCP_BRIDGE_LISTEN", &c.listenAddr)
	num("read-buf", "RCP_BRIDGE_READ_BUF", &c.readBuf)
	str("log-format", "RCP_BRIDGE_LOG_FORMAT", &c.logFormat)
	str("log-level", "RCP_BRIDGE_LOG_LEVEL", &c.logLevel)
	str("log-file", "RCP_BRIDGE_LOG_FILE", &c.logFile)
	str("metrics-addr", "RCP_BRIDGE_METRICS", &c.metricsAddr)
	dur("log-metrics-interval", "RCP_BRIDGE_LOG_METRICS_INTERVAL", &c.logMetricsEvery)
	num("hub-buffer", "RCP_BRIDGE_HUB_BUFFER", &c.hubBuffer)
	str("hub-policy", "RCP_BRIDGE_HUB_POLICY", &c.hubPolicy)
	num("max-clients", "RCP_BRIDGE_MAX_CLIENTS", &c.maxClients)
	dur("handshake-timeout", "RCP_BRIDGE_HANDSHAKE_TIMEOUT", &c.handshakeTO)
	dur("client-read-timeout", "RCP_BRIDGE_CLIENT_READ_TIMEOUT", &c.clientReadTO)
	boolean("mdns-enable", "RCP_BRIDGE_MDNS_ENABLE", &c.mdnsEnable)
	str("mdns-name", "RCP_BRIDGE_MDNS_NAME", &c.mdnsName)
	str("config", "RCP_BRIDGE_CONFIG", &c.configFile)

	return firstErr
}

func (c *appConfig) validate() error {
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid -log-format %q (want text or json)", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid -log-level %q (want debug, info, warn or error)", c.logLevel)
	}
	switch c.hubPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid -hub-policy %q (want drop or kick)", c.hubPolicy)
	}
	if c.radioPath == "" {
		return fmt.Errorf("-radio-path must not be empty")
	}
	if c.listenAddr == "" {
		return fmt.Errorf("-listen must not be empty")
	}
	if c.readBuf <= 0 {
		return fmt.Errorf("-read-buf must be positive, got %d", c.readBuf)
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("-hub-buffer must be positive, got %d", c.hubBuffer)
	}
	if c.maxClients < 0 {
		return fmt.Errorf("-max-clients must not be negative, got %d", c.maxClients)
	}
	if c.handshakeTO <= 0 {
		return fmt.Errorf("-handshake-timeout must be positive, got %v", c.handshakeTO)
	}
	if c.clientReadTO <= 0 {
		return fmt.Errorf("-client-read-timeout must be positive, got %v", c.clientReadTO)
	}
	if c.logMetricsEvery < 0 {
		return fmt.Errorf("-log-metrics-interval must not be negative, got %v", c.logMetricsEvery)
	}
	return nil
}
