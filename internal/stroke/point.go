package stroke

import (
	"math"

	"golang.org/x/exp/constraints"

	"gorow/internal/formats/rws"
)

const (
	ColumnDuration    = "stroke_duration_secs"
	ColumnDistance    = "stroke_distance_m"
	ColumnPace        = "time_500m_secs"
	ColumnStrokeRate  = "strokes_per_min"
	ColumnPower       = "power_watts"
	ColumnCalorieRate = "calories_per_hour"
	ColumnResistance  = "resistance_level"
)

// Columns lists the stored columns in file order.
var Columns = []string{
	ColumnDuration,
	ColumnDistance,
	ColumnPace,
	ColumnStrokeRate,
	ColumnPower,
	ColumnCalorieRate,
	ColumnResistance,
}

// Point is a single stroke. Duration and Distance are per stroke, the rest
// are the instantaneous values reported with the stroke.
type Point struct {
	Duration    float64 `json:"stroke_duration_secs"`
	Distance    float64 `json:"stroke_distance_m"`
	Pace        int     `json:"time_500m_secs"`
	StrokeRate  int     `json:"strokes_per_min"`
	Power       int     `json:"power_watts"`
	CalorieRate int     `json:"calories_per_hour"`
	Resistance  int     `json:"resistance_level"`
}

type Number interface {
	constraints.Float | constraints.Integer
}

func convert[T Number](v float64) T {
	var zero T
	switch any(zero).(type) {
	case float32, float64:
		return T(v)
	}
	return T(math.Round(v))
}

func columnValues[T Number](points []Point, get func(Point) T) []float64 {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = float64(get(p))
	}
	return values
}

// ToTable converts points into the stored column layout.
func ToTable(points []Point) rws.Table {
	var t rws.Table
	t.Set(ColumnDuration, columnValues(points, func(p Point) float64 { return p.Duration }))
	t.Set(ColumnDistance, columnValues(points, func(p Point) float64 { return p.Distance }))
	t.Set(ColumnPace, columnValues(points, func(p Point) int { return p.Pace }))
	t.Set(ColumnStrokeRate, columnValues(points, func(p Point) int { return p.StrokeRate }))
	t.Set(ColumnPower, columnValues(points, func(p Point) int { return p.Power }))
	t.Set(ColumnCalorieRate, columnValues(points, func(p Point) int { return p.CalorieRate }))
	t.Set(ColumnResistance, columnValues(points, func(p Point) int { return p.Resistance }))
	return t
}

type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return "missing column '" + e.Column + "'"
}

// FromTable converts a table in the current layout back into points.
func FromTable(t rws.Table) ([]Point, error) {
	cols := make(map[string][]float64, len(Columns))
	for _, name := range Columns {
		values, ok := t.Column(name)
		if !ok || len(values) != t.Len() {
			return nil, &MissingColumnError{Column: name}
		}
		cols[name] = values
	}

	points := make([]Point, t.Len())
	for i := range points {
		points[i] = Point{
			Duration:    cols[ColumnDuration][i],
			Distance:    cols[ColumnDistance][i],
			Pace:        convert[int](cols[ColumnPace][i]),
			StrokeRate:  convert[int](cols[ColumnStrokeRate][i]),
			Power:       convert[int](cols[ColumnPower][i]),
			CalorieRate: convert[int](cols[ColumnCalorieRate][i]),
			Resistance:  convert[int](cols[ColumnResistance][i]),
		}
	}
	return points, nil
}
