package frame

import (
	"fmt"
	"strconv"
)

const (
	Length = 29 // characters in a data frame

	DataMarker = 'A'
	ConnectAck = 'C'
	ResetAck   = 'R'
)

// Fixed-width layout of a data frame: A5 00001 00010 0 02 19 022 129 0744 09
// (written without the spaces).
type field struct {
	name  string
	start int
	end   int
}

var (
	fieldDeviceType  = field{"device type", 1, 2}
	fieldDuration    = field{"duration", 2, 7}
	fieldDistance    = field{"distance", 7, 12}
	fieldPaceMinutes = field{"pace minutes", 13, 15}
	fieldPaceSeconds = field{"pace seconds", 15, 17}
	fieldStrokeRate  = field{"stroke rate", 17, 20}
	fieldPower       = field{"power", 20, 23}
	fieldCalories    = field{"calorie rate", 23, 27}
	fieldResistance  = field{"resistance", 27, 29}
)

// RawReading holds the values of one data frame. Duration and Distance are
// cumulative since the device session was reset, everything else is
// instantaneous.
type RawReading struct {
	DeviceType  *int
	Duration    int // s
	Distance    int // m
	Pace        int // s per 500m
	StrokeRate  int // strokes/min
	Power       int // W
	CalorieRate int // kcal/h
	Resistance  int
}

type DecodeError struct {
	Frame  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not decode frame '%s': %s: %v", e.Frame, e.Reason, e.Err)
	}
	return fmt.Sprintf("could not decode frame '%s': %s", e.Frame, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type Kind int

const (
	Empty Kind = iota
	Data
	Connected
	Reset
	Other
)

// KindOf classifies a device response by its first character.
func KindOf(line string) Kind {
	if line == "" {
		return Empty
	}
	switch line[0] {
	case DataMarker:
		return Data
	case ConnectAck:
		return Connected
	case ResetAck:
		return Reset
	default:
		return Other
	}
}

// parseField accepts digits only, so signs and blanks are rejected.
func parseField(line string, f field) (int, error) {
	s := line[f.start:f.end]
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, &DecodeError{Frame: line, Reason: "invalid " + f.name}
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &DecodeError{Frame: line, Reason: "invalid " + f.name, Err: err}
	}
	return v, nil
}

// Decode parses one data frame. Malformed frames are rejected as a whole.
func Decode(line string) (r RawReading, err error) {
	if len(line) != Length {
		err = &DecodeError{
			Frame:  line,
			Reason: fmt.Sprintf("frame is %d characters long, expected %d", len(line), Length),
		}
		return
	}

	if line[0] == DataMarker {
		var deviceType int
		if deviceType, err = parseField(line, fieldDeviceType); err != nil {
			return RawReading{}, err
		}
		r.DeviceType = &deviceType
	}

	var minutes, seconds int
	targets := []struct {
		f   field
		dst *int
	}{
		{fieldDuration, &r.Duration},
		{fieldDistance, &r.Distance},
		{fieldPaceMinutes, &minutes},
		{fieldPaceSeconds, &seconds},
		{fieldStrokeRate, &r.StrokeRate},
		{fieldPower, &r.Power},
		{fieldCalories, &r.CalorieRate},
		{fieldResistance, &r.Resistance},
	}
	for _, t := range targets {
		if *t.dst, err = parseField(line, t.f); err != nil {
			return RawReading{}, err
		}
	}
	r.Pace = minutes*60 + seconds

	return r, nil
}

// Encode renders r as a data frame. A nil device type is written as 0.
func Encode(r RawReading) string {
	deviceType := 0
	if r.DeviceType != nil {
		deviceType = *r.DeviceType
	}
	return fmt.Sprintf("%c%01d%05d%05d0%02d%02d%03d%03d%04d%02d",
		DataMarker, deviceType, r.Duration, r.Distance,
		r.Pace/60, r.Pace%60, r.StrokeRate, r.Power, r.CalorieRate, r.Resistance)
}
