// Package config parses and validates command line configuration for
// the craft relay.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/stewlg/craftrelay/internal/relayerr"
)

const (
	defaultBaudRate              = 19200
	defaultRefreshIntervalMillis = 100
	defaultStaleIntervalMillis   = 4000
	defaultLogLevel              = zerolog.InfoLevel
)

// PhantomWingmanSpec is a parsed --phantomwingman argument: a synthetic
// craft tracking the real craft on targetPort (or every port, if
// targetPort is "all") at a fixed bearing/distance/altitude offset.
type PhantomWingmanSpec struct {
	TargetPort        string
	BearingOffsetDeg  float64
	DistanceMeters    float64
	RelativeAltMeters int16
}

// Config is the fully parsed and validated set of relay options.
type Config struct {
	// PortsAuto is true when Ports should be discovered at startup
	// rather than used literally.
	PortsAuto bool
	Ports     []string

	BaudRate              int
	RefreshIntervalMillis int
	StaleIntervalMillis   int

	LogLevel zerolog.Level
	LogDir   string

	OmitGpsPosition bool
	ExitOnGpsLoss   bool

	PhantomWingmen []PhantomWingmanSpec
}

// Default returns a Config with every value the relay falls back to
// when a flag is omitted.
func Default() *Config {
	return &Config{
		PortsAuto:             true,
		BaudRate:              defaultBaudRate,
		RefreshIntervalMillis: defaultRefreshIntervalMillis,
		StaleIntervalMillis:   defaultStaleIntervalMillis,
		LogLevel:              defaultLogLevel,
		LogDir:                ".",
	}
}

// Parse builds a Config from command line arguments (excluding argv[0]).
func Parse(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("craftrelay", flag.ContinueOnError)
	portsFlag := fs.String("ports", "auto", "Ports to use: 'com4,com20,com48' or 'auto' to discover ports")
	baudFlag := fs.Uint32("baud", defaultBaudRate, "Baud rate to use for every port")
	refreshFlag := fs.Uint32("refresh", defaultRefreshIntervalMillis, "Scheduler refresh interval in milliseconds")
	staleFlag := fs.Uint32("stale", defaultStaleIntervalMillis, "Stale interval in milliseconds; 0 disables stale suppression")
	logLevelFlag := fs.String("loglevel", "info", "Log level: trace, debug, info, warn, error, fatal, off")
	logDirFlag := fs.String("logdir", ".", "Directory rolling log files are written to")
	omitGpsFlag := fs.Bool("omitgpspos", false, "Redact latitude/longitude from log output")
	exitGpsLossFlag := fs.Bool("exitgpsloss", false, "Exit the process if a link's identity watchdog ever trips")
	phantomWingmanFlag := fs.StringArray("phantomwingman", nil,
		"Inject a test wingman craft: port|'all',bearingDeg,distanceMeters,relativeAltMeters")

	if err := fs.Parse(args); err != nil {
		return nil, relayerr.Configuration("failed to parse command line arguments", err)
	}

	if strings.EqualFold(*portsFlag, "auto") {
		cfg.PortsAuto = true
	} else {
		cfg.PortsAuto = false
		for _, p := range strings.Split(*portsFlag, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.Ports = append(cfg.Ports, p)
			}
		}
		if len(cfg.Ports) == 0 {
			return nil, relayerr.Configuration("--ports given but no port names parsed", nil)
		}
	}

	cfg.BaudRate = int(*baudFlag)
	cfg.RefreshIntervalMillis = int(*refreshFlag)
	cfg.StaleIntervalMillis = int(*staleFlag)
	cfg.LogDir = *logDirFlag
	cfg.OmitGpsPosition = *omitGpsFlag
	cfg.ExitOnGpsLoss = *exitGpsLossFlag

	level, err := parseLogLevel(*logLevelFlag)
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	for _, raw := range *phantomWingmanFlag {
		spec, err := parsePhantomWingman(raw)
		if err != nil {
			return nil, err
		}
		cfg.PhantomWingmen = append(cfg.PhantomWingmen, spec)
	}

	return cfg, nil
}

func parseLogLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error", "err":
		return zerolog.ErrorLevel, nil
	case "fatal", "critical":
		return zerolog.FatalLevel, nil
	case "off":
		return zerolog.Disabled, nil
	default:
		return 0, relayerr.Configuration(fmt.Sprintf("unrecognized log level %q", s), nil)
	}
}

// parsePhantomWingman parses "port|'all',bearingDeg,distanceMeters,relativeAltMeters",
// e.g. "com20,90,100,-35".
func parsePhantomWingman(raw string) (PhantomWingmanSpec, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return PhantomWingmanSpec{}, relayerr.Configuration(
			fmt.Sprintf("--phantomwingman %q: expected 4 comma-separated fields (port,bearingDeg,distanceMeters,relativeAltMeters)", raw), nil)
	}

	targetPort := strings.TrimSpace(parts[0])
	if targetPort == "" {
		return PhantomWingmanSpec{}, relayerr.Configuration(fmt.Sprintf("--phantomwingman %q: empty target port", raw), nil)
	}

	bearing, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return PhantomWingmanSpec{}, relayerr.Configuration(fmt.Sprintf("--phantomwingman %q: invalid bearing", raw), err)
	}
	distance, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return PhantomWingmanSpec{}, relayerr.Configuration(fmt.Sprintf("--phantomwingman %q: invalid distance", raw), err)
	}
	relAlt, err := strconv.ParseInt(strings.TrimSpace(parts[3]), 10, 16)
	if err != nil {
		return PhantomWingmanSpec{}, relayerr.Configuration(fmt.Sprintf("--phantomwingman %q: invalid relative altitude", raw), err)
	}

	return PhantomWingmanSpec{
		TargetPort:        targetPort,
		BearingOffsetDeg:  bearing,
		DistanceMeters:    distance,
		RelativeAltMeters: int16(relAlt),
	}, nil
}
