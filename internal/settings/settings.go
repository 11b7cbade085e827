package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "config.yaml"
	ExampleConfigPath = "config.example.yaml"
	ConfigFileEnv     = "FRM_CONFIG_FILE"
	EnvPrefix         = "FRM_"
)

type Serial struct {
	Port        string  `yaml:"port"         json:"port"`
	BaudRate    int     `yaml:"baudrate"     json:"baudrate"`
	TimeoutSecs float64 `yaml:"timeout_secs" json:"timeout_secs"`
}

type Data struct {
	Dir string `yaml:"dir" json:"dir"`
}

type Logging struct {
	Level string `yaml:"level" json:"level"`
}

type Reconnect struct {
	MaxAttempts       int     `yaml:"max_attempts"        json:"max_attempts"`
	BackoffSecs       float64 `yaml:"backoff_secs"        json:"backoff_secs"`
	FlushIntervalSecs float64 `yaml:"flush_interval_secs" json:"flush_interval_secs"`
	FlushAfterStrokes int     `yaml:"flush_after_strokes" json:"flush_after_strokes"`
}

type UI struct {
	XAxisType string `yaml:"x_axis_type" json:"x_axis_type"`
	MaxPoints int    `yaml:"max_points"  json:"max_points"`
}

// Notify configures the saved-session announcements. An empty endpoint
// disables them.
type Notify struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

type Settings struct {
	Version   int       `yaml:"version"   json:"version"`
	Serial    Serial    `yaml:"serial"    json:"serial"`
	Data      Data      `yaml:"data"      json:"data"`
	Logging   Logging   `yaml:"logging"   json:"logging"`
	Reconnect Reconnect `yaml:"reconnect" json:"reconnect"`
	UI        UI        `yaml:"ui"        json:"ui"`
	Notify    Notify    `yaml:"notify"    json:"notify"`
}

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Msg)
}

func Default() *Settings {
	return &Settings{
		Version: 1,
		Serial: Serial{
			Port:        "/dev/ttyUSB0",
			BaudRate:    9600,
			TimeoutSecs: 2,
		},
		Data: Data{
			Dir: "rowing_sessions",
		},
		Logging: Logging{
			Level: "INFO",
		},
		Reconnect: Reconnect{
			MaxAttempts:       5,
			BackoffSecs:       0.5,
			FlushIntervalSecs: 60,
			FlushAfterStrokes: 10,
		},
		UI: UI{
			XAxisType: "samples",
			MaxPoints: 30,
		},
	}
}

// Load builds the settings from defaults, then the YAML file, then FRM_
// environment variables. An empty path means FRM_CONFIG_FILE, or
// config.yaml if that is unset. A missing file is not an error.
func Load(path string) (*Settings, error) {
	godotenv.Load()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path == "" {
		path = DefaultConfigPath
	}

	s := Default()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := s.decode(data); err != nil {
			return nil, fmt.Errorf("could not load '%s': %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := s.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) decode(data []byte) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return err
	}
	node := &root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	switch {
	case node.Kind == 0, node.Kind == yaml.DocumentNode:
		return nil
	case node.Kind == yaml.ScalarNode && node.Tag == "!!null":
		return nil
	case node.Kind != yaml.MappingNode:
		return &ValidationError{Field: "root", Msg: "configuration root must be a mapping"}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// Validate checks the bounds of every setting.
func (s *Settings) Validate() error {
	checks := []struct {
		ok    bool
		field string
		msg   string
	}{
		{s.Serial.Port != "", "serial.port", "must not be empty"},
		{s.Serial.BaudRate > 0, "serial.baudrate", "must be greater than 0"},
		{s.Serial.TimeoutSecs > 0, "serial.timeout_secs", "must be greater than 0"},
		{s.Data.Dir != "", "data.dir", "must not be empty"},
		{validLevel(s.Logging.Level), "logging.level", "must be one of TRACE, DEBUG, INFO, WARN, ERROR"},
		{s.Reconnect.MaxAttempts >= 1, "reconnect.max_attempts", "must be at least 1"},
		{s.Reconnect.BackoffSecs >= 0, "reconnect.backoff_secs", "must not be negative"},
		{s.Reconnect.FlushIntervalSecs >= 1, "reconnect.flush_interval_secs", "must be at least 1"},
		{s.Reconnect.FlushAfterStrokes >= 1, "reconnect.flush_after_strokes", "must be at least 1"},
		{s.UI.MaxPoints >= 10 && s.UI.MaxPoints <= 500, "ui.max_points", "must be between 10 and 500"},
		{validAxis(s.UI.XAxisType), "ui.x_axis_type", "must be one of samples, time, distance"},
	}
	for _, c := range checks {
		if !c.ok {
			return &ValidationError{Field: c.field, Msg: c.msg}
		}
	}
	return nil
}

func validLevel(level string) bool {
	return hclog.LevelFromString(level) != hclog.NoLevel
}

func validAxis(axis string) bool {
	switch axis {
	case "samples", "time", "distance":
		return true
	}
	return false
}

// Save writes the settings to path as YAML.
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// EnsureConfig creates the config file at path from the example file if it
// does not exist yet, and returns the path of the config file.
func EnsureConfig(path, example string) (string, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	if example == "" {
		example = ExampleConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	data, err := os.ReadFile(example)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("config file '%s' not found and example file '%s' is missing", path, example)
	} else if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (s *Settings) ReadTimeout() time.Duration {
	return seconds(s.Serial.TimeoutSecs)
}

func (s *Settings) Backoff() time.Duration {
	return seconds(s.Reconnect.BackoffSecs)
}

func (s *Settings) FlushInterval() time.Duration {
	return seconds(s.Reconnect.FlushIntervalSecs)
}

func (s *Settings) LogLevel() hclog.Level {
	return hclog.LevelFromString(s.Logging.Level)
}

// Logger returns the root logger configured by the logging section.
func (s *Settings) Logger(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  name,
		Level: s.LogLevel(),
	})
}

func (s *Settings) CatalogPath() string {
	return filepath.Join(s.Data.Dir, "catalog.db")
}
