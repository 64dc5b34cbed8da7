// Package configuration loads the tool's YAML configuration file, applying
// environment-variable overrides the same way the reference registry server
// does: Configuration.Abc may be replaced by BUNDLEEXTRACT_ABC,
// Configuration.Abc.Xyz by BUNDLEEXTRACT_ABC_XYZ, and so on.
package configuration

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"
)

// Configuration is a versioned tool configuration, provided by a YAML file
// and optionally overridden by environment variables.
//
// Note that yaml field names should never include _ characters, since this
// is the separator used in environment variable names.
type Configuration struct {
	// Version defines the format of the rest of the configuration.
	Version Version `yaml:"version"`

	// Input is the default bundle file or directory of bundles to read,
	// used when the CLI's --input flag is not given.
	Input string `yaml:"input,omitempty"`

	// Output is the sandboxed directory extracted files are written under.
	Output string `yaml:"output,omitempty"`

	// Dictionary is the path to a name dictionary text file, one path per
	// line. Absent or empty disables name resolution.
	Dictionary string `yaml:"dictionary,omitempty"`

	// Log supports setting various parameters related to the logging
	// subsystem.
	Log Log `yaml:"log"`

	// Workers configures the worker pool's concurrency.
	Workers Workers `yaml:"workers,omitempty"`

	// Redis configures an optional cross-process deduplication backend.
	Redis Redis `yaml:"redis,omitempty"`

	// Metrics configures the Prometheus counters and their optional HTTP
	// exposition.
	Metrics Metrics `yaml:"metrics,omitempty"`

	// Debug configures the optional loopback debug HTTP server.
	Debug Debug `yaml:"debug,omitempty"`
}

// Workers configures how many goroutines process bundles concurrently.
type Workers struct {
	// Count is the worker pool size. Zero means GOMAXPROCS-1 (minimum 1).
	Count int `yaml:"count,omitempty"`
}

// Redis configures the optional cross-process dedup backend.
type Redis struct {
	// Addrs lists one or more "host:port" Redis endpoints. Empty disables
	// the Redis dedup backend; the in-process map is used exclusively.
	Addrs []string `yaml:"addrs,omitempty"`

	// Username/Password authenticate against the Redis server, if set.
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// DB selects the Redis logical database index.
	DB int `yaml:"db,omitempty"`

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration `yaml:"dialtimeout,omitempty"`
}

// Metrics configures the Prometheus counters this tool exposes and, when
// Enabled, the loopback HTTP server that serves them.
type Metrics struct {
	// Enabled turns on the metrics HTTP server.
	Enabled bool `yaml:"enabled,omitempty"`

	// Addr is the loopback bind address for the metrics/debug server.
	Addr string `yaml:"addr,omitempty"`

	// Path is the URL path metrics are served from. Defaults to "/metrics".
	Path string `yaml:"path,omitempty"`
}

// Debug configures the optional debug HTTP server (pprof and progress).
type Debug struct {
	// Addr is the loopback bind address for the debug server. When empty,
	// the server runs only if Metrics.Enabled is set, on Metrics.Addr.
	Addr string `yaml:"addr,omitempty"`
}

// Log represents the configuration for logging within the application.
type Log struct {
	// Level is the granularity at which operations are logged.
	Level Loglevel `yaml:"level,omitempty"`

	// Formatter overrides the default formatter with another. Options
	// include "text", "json" and "logstash".
	Formatter string `yaml:"formatter,omitempty"`

	// Fields allows users to specify static fields to include on every
	// logged line.
	Fields map[string]interface{} `yaml:"fields,omitempty"`

	// ReportCaller is accepted in the configuration file, but the logging
	// setup does not read it: log lines never carry the calling
	// function/file/line.
	ReportCaller bool `yaml:"reportcaller,omitempty"`
}

// v0_1Configuration is a Version 0.1 Configuration struct. This is
// currently aliased to Configuration, as it is the current version.
type v0_1Configuration Configuration

// UnmarshalYAML implements the yaml.Unmarshaler interface. It unmarshals a
// string of the form X.Y into a Version, validating that X and Y can
// represent unsigned integers.
func (version *Version) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var versionString string
	if err := unmarshal(&versionString); err != nil {
		return err
	}

	newVersion := Version(versionString)
	if _, err := newVersion.major(); err != nil {
		return err
	}
	if _, err := newVersion.minor(); err != nil {
		return err
	}

	*version = newVersion
	return nil
}

// CurrentVersion is the most recent Version that can be parsed.
var CurrentVersion = MajorMinorVersion(0, 1)

// Loglevel is the level at which operations are logged: error, warn, info,
// or debug.
type Loglevel string

// UnmarshalYAML implements the yaml.Unmarshaler interface. It unmarshals a
// string into a Loglevel, lowercasing it and validating it names a known
// level.
func (loglevel *Loglevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var loglevelString string
	if err := unmarshal(&loglevelString); err != nil {
		return err
	}

	loglevelString = strings.ToLower(loglevelString)
	switch loglevelString {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("invalid loglevel %s: must be one of [error, warn, info, debug]", loglevelString)
	}

	*loglevel = Loglevel(loglevelString)
	return nil
}

// Parse parses an input configuration YAML document into a Configuration.
//
// Environment variables may be used to override configuration parameters
// other than version, following the scheme described in the package doc.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	p := NewParser("bundleextract", []VersionedParseInfo{
		{
			Version: MajorMinorVersion(0, 1),
			ParseAs: reflect.TypeOf(v0_1Configuration{}),
			ConversionFunc: func(c interface{}) (interface{}, error) {
				v0_1, ok := c.(*v0_1Configuration)
				if !ok {
					return nil, fmt.Errorf("expected *v0_1Configuration, received %#v", c)
				}
				if v0_1.Log.Level == Loglevel("") {
					v0_1.Log.Level = Loglevel("info")
				}
				if v0_1.Output == "" {
					v0_1.Output = "./out"
				}
				if v0_1.Metrics.Path == "" {
					v0_1.Metrics.Path = "/metrics"
				}
				return (*Configuration)(v0_1), nil
			},
		},
	})

	config := new(Configuration)
	if err := p.Parse(in, config); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	return config, nil
}

// Default returns a zero-value configuration with CurrentVersion and the
// same defaults Parse would apply to an empty document, for callers running
// without a configuration file (e.g. CLI-flags-only invocations).
func Default() *Configuration {
	return &Configuration{
		Version: CurrentVersion,
		Output:  "./out",
		Log:     Log{Level: "info"},
		Metrics: Metrics{Path: "/metrics"},
	}
}
