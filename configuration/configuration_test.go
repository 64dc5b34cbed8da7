package configuration

import (
	"bytes"
	"reflect"
	"testing"
)

// configStruct is a canonical example configuration, which should map to configYamlV0_1.
var configStruct = Configuration{
	Version: "0.1",
	Input:   "./bundles",
	Output:  "./out",
	Log: Log{
		Level:  "info",
		Fields: map[string]interface{}{"environment": "test"},
	},
	Workers: Workers{Count: 4},
	Metrics: Metrics{Path: "/metrics"},
}

var configYamlV0_1 = `
version: "0.1"
input: ./bundles
output: ./out
log:
  level: info
  fields:
    environment: test
workers:
  count: 4
`

func TestParseSimple(t *testing.T) {
	config, err := Parse(bytes.NewReader([]byte(configYamlV0_1)))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(*config, configStruct) {
		t.Fatalf("got %+v, want %+v", *config, configStruct)
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	minimal := "version: \"0.1\"\n"
	config, err := Parse(bytes.NewReader([]byte(minimal)))
	if err != nil {
		t.Fatal(err)
	}
	if config.Output != "./out" {
		t.Errorf("Output = %q, want default ./out", config.Output)
	}
	if config.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want default info", config.Log.Level)
	}
	if config.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default /metrics", config.Metrics.Path)
	}
}

func TestParseWithEnvOverride(t *testing.T) {
	t.Setenv("BUNDLEEXTRACT_LOG_LEVEL", "debug")
	t.Setenv("BUNDLEEXTRACT_WORKERS_COUNT", "8")

	config, err := Parse(bytes.NewReader([]byte(configYamlV0_1)))
	if err != nil {
		t.Fatal(err)
	}
	if config.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", config.Log.Level)
	}
	if config.Workers.Count != 8 {
		t.Errorf("Workers.Count = %d, want 8", config.Workers.Count)
	}
}

func TestParseInvalidLoglevel(t *testing.T) {
	invalid := "version: \"0.1\"\nlog:\n  level: derp\n"
	if _, err := Parse(bytes.NewReader([]byte(invalid))); err == nil {
		t.Fatal("expected an error for an invalid log level")
	}
}

func TestParseInvalidVersion(t *testing.T) {
	invalid := "version: \"9.9\"\n"
	if _, err := Parse(bytes.NewReader([]byte(invalid))); err == nil {
		t.Fatal("expected an error for an unsupported version")
	}
}

func TestDefault(t *testing.T) {
	d := Default()
	if d.Version != CurrentVersion {
		t.Errorf("Default().Version = %q, want %q", d.Version, CurrentVersion)
	}
	if d.Output != "./out" {
		t.Errorf("Default().Output = %q, want ./out", d.Output)
	}
}
