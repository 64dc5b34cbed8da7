package configuration

import (
	"reflect"
	"testing"
)

type localConfiguration struct {
	Version       Version   `yaml:"version"`
	Log           *localLog `yaml:"log"`
	Notifications []Notif   `yaml:"notifications,omitempty"`
}

type localLog struct {
	Formatter string `yaml:"formatter,omitempty"`
}

type Notif struct {
	Name string `yaml:"name"`
}

var expectedConfig = localConfiguration{
	Version: "0.1",
	Log: &localLog{
		Formatter: "json",
	},
	Notifications: []Notif{
		{Name: "foo"},
		{Name: "bar"},
		{Name: "car"},
	},
}

const testConfig = `version: "0.1"
log:
  formatter: "text"
notifications:
  - name: "foo"
  - name: "bar"
  - name: "car"`

func newLocalParser(config localConfiguration) *Parser {
	return NewParser("registry", []VersionedParseInfo{
		{
			Version: "0.1",
			ParseAs: reflect.TypeOf(config),
			ConversionFunc: func(c interface{}) (interface{}, error) {
				return c, nil
			},
		},
	})
}

func TestParserOverwriteInitializedPointer(t *testing.T) {
	config := localConfiguration{}

	t.Setenv("REGISTRY_LOG_FORMATTER", "json")

	p := newLocalParser(config)
	if err := p.Parse([]byte(testConfig), &config); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(config, expectedConfig) {
		t.Fatalf("got %+v, want %+v", config, expectedConfig)
	}
}

const testConfig2 = `version: "0.1"
log:
  formatter: "text"
notifications:
  - name: "val1"
  - name: "val2"
  - name: "car"`

func TestParserOverwriteUninitializedPointer(t *testing.T) {
	config := localConfiguration{}

	t.Setenv("REGISTRY_LOG_FORMATTER", "json")
	// override only the first two notification values; leave the last
	// value from testConfig2 unchanged.
	t.Setenv("REGISTRY_NOTIFICATIONS_0_NAME", "foo")
	t.Setenv("REGISTRY_NOTIFICATIONS_1_NAME", "bar")

	p := newLocalParser(config)
	if err := p.Parse([]byte(testConfig2), &config); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(config, expectedConfig) {
		t.Fatalf("got %+v, want %+v", config, expectedConfig)
	}
}
