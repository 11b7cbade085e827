package stroke

import (
	"errors"
	"math"
	"testing"

	"gorow/internal/formats/rws"
)

func samplePoints() []Point {
	return []Point{
		{Duration: 2.3, Distance: 9.1, Pace: 139, StrokeRate: 22, Power: 129, CalorieRate: 744, Resistance: 9},
		{Duration: 2.1, Distance: 9.5, Pace: 135, StrokeRate: 24, Power: 141, CalorieRate: 760, Resistance: 9},
		{Duration: 2.5, Distance: 8.7, Pace: 143, StrokeRate: 20, Power: 117, CalorieRate: 728, Resistance: 10},
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculateEmpty(t *testing.T) {
	if s := Calculate(nil); s != nil {
		t.Fatalf("got %+v for no points", s)
	}
	if s := CalculateTable(rws.Table{}); s != nil {
		t.Fatalf("got %+v for empty table", s)
	}
}

func TestCalculate(t *testing.T) {
	s := Calculate(samplePoints())
	if s == nil {
		t.Fatal("no stats")
	}
	if s.NumStrokes != 3 {
		t.Fatalf("num strokes %d", s.NumStrokes)
	}
	checks := []struct {
		name      string
		got, want float64
	}{
		{"total distance", s.TotalDistance, 27.3},
		{"total duration", s.TotalDuration, 6.9},
		{"mean pace", s.MeanPace, 139},
		{"min pace", s.MinPace, 135},
		{"max pace", s.MaxPace, 143},
		{"mean stroke rate", s.MeanStrokeRate, 22},
		{"max stroke rate", s.MaxStrokeRate, 24},
		{"mean power", s.MeanPower, 129},
		{"max power", s.MaxPower, 141},
		{"min power", s.MinPower, 117},
		{"total calories", s.TotalCalories, 2232},
		{"mean resistance", s.MeanResistance, 28.0 / 3},
	}
	for _, c := range checks {
		if !almostEqual(c.got, c.want) {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestAccumulatorMatchesCalculate(t *testing.T) {
	var a Accumulator
	if a.Stats() != nil {
		t.Fatal("stats before first point")
	}
	points := samplePoints()
	for _, p := range points {
		a.Add(p)
	}
	got := a.Stats()
	want := Calculate(points)
	if got.NumStrokes != want.NumStrokes ||
		!almostEqual(got.TotalDistance, want.TotalDistance) ||
		!almostEqual(got.MeanPace, want.MeanPace) ||
		!almostEqual(got.MinPower, want.MinPower) ||
		!almostEqual(got.MaxPower, want.MaxPower) ||
		!almostEqual(got.MeanResistance, want.MeanResistance) ||
		!almostEqual(got.TotalCalories, want.TotalCalories) {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	a.Reset()
	if a.Stats() != nil {
		t.Fatal("stats after reset")
	}
}

func TestTableRoundTrip(t *testing.T) {
	points := samplePoints()
	got, err := FromTable(ToTable(points))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(points) {
		t.Fatalf("got %d points", len(got))
	}
	for i := range points {
		if got[i] != points[i] {
			t.Fatalf("point %d: got %+v, want %+v", i, got[i], points[i])
		}
	}
}

func TestFromTableMissingColumn(t *testing.T) {
	table := ToTable(samplePoints())
	table.Drop(ColumnPower)
	_, err := FromTable(table)
	var mce *MissingColumnError
	if !errors.As(err, &mce) || mce.Column != ColumnPower {
		t.Fatalf("got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	if Summarize(nil) != nil {
		t.Fatal("rollup of nothing")
	}
	points := samplePoints()
	r := Summarize([]rws.Table{ToTable(points[:1]), ToTable(points[1:])})
	if r.TotalSessions != 2 || r.TotalStrokes != 3 {
		t.Fatalf("got %+v", r)
	}
	if !almostEqual(r.TotalDistance, 27.3) || !almostEqual(r.MeanPower, 129) ||
		r.MaxPower != 141 || r.TotalCalories != 2232 || !almostEqual(r.MeanStrokeRate, 22) {
		t.Fatalf("got %+v", r)
	}
}

func TestCompare(t *testing.T) {
	points := samplePoints()
	first := Calculate(points[:1])
	second := Calculate(points[1:])
	c := Compare(first, second)
	if !almostEqual(c.DistanceDiff, 18.2-9.1) {
		t.Errorf("distance diff %v", c.DistanceDiff)
	}
	if !almostEqual(c.PowerDiff, 0) {
		t.Errorf("power diff %v", c.PowerDiff)
	}
	if !almostEqual(c.PaceDiff, 0) {
		t.Errorf("pace diff %v", c.PaceDiff)
	}
	if Compare(first, nil) != nil {
		t.Error("comparison with a missing session")
	}
}
