// Package logging sets up the relay's structured loggers: one console
// sink, one rolling all-ports log file, and one rolling per-link log
// file for each configured serial port.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Set holds every logger the relay writes to.
type Set struct {
	All       zerolog.Logger
	perLink   map[string]zerolog.Logger
	omitPos   bool
	startedAt time.Time
}

// Options configures log destinations.
type Options struct {
	// Dir is the directory rolling log files are written to.
	Dir string
	// Level is the minimum level written to every sink.
	Level zerolog.Level
	// OmitGpsPosition redacts lat/lon from logged position fields,
	// leaving fix type, satellite count and altitude intact.
	OmitGpsPosition bool
	// Console, if non-nil, additionally receives human-readable output
	// (typically os.Stdout). May be nil for a file-only setup.
	Console io.Writer
}

// New builds a Set with an all-ports file, one file per link, and an
// optional console sink. linkNames should be the configured serial
// port names.
func New(opts Options, linkNames []string) (*Set, error) {
	stamp := time.Now().UTC().Format("20060102-150405")

	writers := []io.Writer{newRollingFile(opts.Dir, fmt.Sprintf("%s--CraftServices_AllLog.txt", stamp))}
	if opts.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: opts.Console, TimeFormat: time.RFC3339})
	}
	allWriter := io.MultiWriter(writers...)

	all := zerolog.New(allWriter).Level(opts.Level).With().Timestamp().Logger()

	perLink := make(map[string]zerolog.Logger, len(linkNames))
	for _, name := range linkNames {
		sanitized := sanitizePortName(name)
		file := newRollingFile(opts.Dir, fmt.Sprintf("%s--CraftServices_%s.txt", stamp, sanitized))
		linkWriters := []io.Writer{file, allWriter}
		logger := zerolog.New(io.MultiWriter(linkWriters...)).Level(opts.Level).With().
			Timestamp().Str("link", name).Logger()
		perLink[name] = logger
	}

	return &Set{All: all, perLink: perLink, omitPos: opts.OmitGpsPosition, startedAt: time.Now()}, nil
}

// Link returns the logger for a configured port name, falling back to
// the all-ports logger if the port was never registered (this should
// not happen in practice, since links are built from the same name
// list passed to New).
func (s *Set) Link(portName string) zerolog.Logger {
	if l, ok := s.perLink[portName]; ok {
		return l
	}
	return s.All
}

func newRollingFile(dir, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   dir + string(os.PathSeparator) + name,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     0,
		Compress:   false,
	}
}

func sanitizePortName(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return r.Replace(name)
}

// RedactedLatLon formats a lat/lon pair for logging, substituting a
// fixed placeholder when position redaction is enabled. A position of
// exactly (0,0) is never redacted: that's what an un-fixed GPS reports,
// and it reveals nothing about the craft's real whereabouts.
func (s *Set) RedactedLatLon(latDeg, lonDeg float64) string {
	if s.omitPos && (latDeg != 0 || lonDeg != 0) {
		return "XX.XXXX, YY.YYYY"
	}
	return fmt.Sprintf("%.8f, %.8f", latDeg, lonDeg)
}
