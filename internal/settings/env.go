package settings

import (
	"strconv"
	"strings"
)

type override struct {
	key string
	set func(s *Settings, value string) error
}

func text(field func(*Settings) *string) func(*Settings, string) error {
	return func(s *Settings, value string) error {
		*field(s) = value
		return nil
	}
}

func integer(field func(*Settings) *int) func(*Settings, string) error {
	return func(s *Settings, value string) error {
		v, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		*field(s) = v
		return nil
	}
}

func float(field func(*Settings) *float64) func(*Settings, string) error {
	return func(s *Settings, value string) error {
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return err
		}
		*field(s) = v
		return nil
	}
}

// Environment variables are named after the YAML path with __ between
// levels, e.g. FRM_SERIAL__PORT.
var overrides = []override{
	{"VERSION", integer(func(s *Settings) *int { return &s.Version })},
	{"SERIAL__PORT", text(func(s *Settings) *string { return &s.Serial.Port })},
	{"SERIAL__BAUDRATE", integer(func(s *Settings) *int { return &s.Serial.BaudRate })},
	{"SERIAL__TIMEOUT_SECS", float(func(s *Settings) *float64 { return &s.Serial.TimeoutSecs })},
	{"DATA__DIR", text(func(s *Settings) *string { return &s.Data.Dir })},
	{"LOGGING__LEVEL", text(func(s *Settings) *string { return &s.Logging.Level })},
	{"RECONNECT__MAX_ATTEMPTS", integer(func(s *Settings) *int { return &s.Reconnect.MaxAttempts })},
	{"RECONNECT__BACKOFF_SECS", float(func(s *Settings) *float64 { return &s.Reconnect.BackoffSecs })},
	{"RECONNECT__FLUSH_INTERVAL_SECS", float(func(s *Settings) *float64 { return &s.Reconnect.FlushIntervalSecs })},
	{"RECONNECT__FLUSH_AFTER_STROKES", integer(func(s *Settings) *int { return &s.Reconnect.FlushAfterStrokes })},
	{"UI__X_AXIS_TYPE", text(func(s *Settings) *string { return &s.UI.XAxisType })},
	{"UI__MAX_POINTS", integer(func(s *Settings) *int { return &s.UI.MaxPoints })},
	{"NOTIFY__ENDPOINT", text(func(s *Settings) *string { return &s.Notify.Endpoint })},
}

func (s *Settings) applyEnv(lookup func(string) (string, bool)) error {
	for _, o := range overrides {
		name := EnvPrefix + o.key
		value, ok := lookup(name)
		if !ok {
			continue
		}
		if err := o.set(s, value); err != nil {
			return &ValidationError{Field: name, Msg: err.Error()}
		}
	}
	return nil
}
