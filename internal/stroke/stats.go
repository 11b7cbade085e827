package stroke

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"gorow/internal/formats/rws"
)

type Stats struct {
	NumStrokes     int     `json:"num_strokes"`
	TotalDistance  float64 `json:"total_distance_m"`
	TotalDuration  float64 `json:"total_duration_secs"`
	MeanPace       float64 `json:"mean_time_500m_secs"`
	MinPace        float64 `json:"min_time_500m_secs"`
	MaxPace        float64 `json:"max_time_500m_secs"`
	MeanStrokeRate float64 `json:"mean_strokes_per_min"`
	MaxStrokeRate  float64 `json:"max_strokes_per_min"`
	MeanPower      float64 `json:"mean_power_watts"`
	MaxPower       float64 `json:"max_power_watts"`
	MinPower       float64 `json:"min_power_watts"`
	TotalCalories  float64 `json:"total_calories"`
	MeanResistance float64 `json:"mean_resistance"`
}

// Calculate returns the statistics of points, or nil if there are none.
func Calculate(points []Point) *Stats {
	if len(points) == 0 {
		return nil
	}
	return CalculateTable(ToTable(points))
}

// CalculateTable returns the statistics of a stored table, or nil if it
// has no rows or lacks any of the stroke columns.
func CalculateTable(t rws.Table) *Stats {
	if t.Len() == 0 {
		return nil
	}
	cols := make(map[string][]float64, len(Columns))
	for _, name := range Columns {
		values, ok := t.Column(name)
		if !ok || len(values) == 0 {
			return nil
		}
		cols[name] = values
	}

	pace := cols[ColumnPace]
	rate := cols[ColumnStrokeRate]
	power := cols[ColumnPower]
	return &Stats{
		NumStrokes:     t.Len(),
		TotalDistance:  floats.Sum(cols[ColumnDistance]),
		TotalDuration:  floats.Sum(cols[ColumnDuration]),
		MeanPace:       stat.Mean(pace, nil),
		MinPace:        floats.Min(pace),
		MaxPace:        floats.Max(pace),
		MeanStrokeRate: stat.Mean(rate, nil),
		MaxStrokeRate:  floats.Max(rate),
		MeanPower:      stat.Mean(power, nil),
		MaxPower:       floats.Max(power),
		MinPower:       floats.Min(power),
		TotalCalories:  floats.Sum(cols[ColumnCalorieRate]),
		MeanResistance: stat.Mean(cols[ColumnResistance], nil),
	}
}

// Accumulator keeps running statistics of a live stream of points without
// retaining them.
type Accumulator struct {
	stats Stats

	sumPace, sumRate, sumPower, sumResistance float64
}

func (a *Accumulator) Add(p Point) {
	pace := float64(p.Pace)
	rate := float64(p.StrokeRate)
	power := float64(p.Power)

	s := &a.stats
	if s.NumStrokes == 0 {
		s.MinPace, s.MaxPace = pace, pace
		s.MaxStrokeRate = rate
		s.MinPower, s.MaxPower = power, power
	}
	s.NumStrokes++
	s.TotalDistance += p.Distance
	s.TotalDuration += p.Duration
	s.TotalCalories += float64(p.CalorieRate)
	s.MinPace = math.Min(s.MinPace, pace)
	s.MaxPace = math.Max(s.MaxPace, pace)
	s.MaxStrokeRate = math.Max(s.MaxStrokeRate, rate)
	s.MinPower = math.Min(s.MinPower, power)
	s.MaxPower = math.Max(s.MaxPower, power)

	a.sumPace += pace
	a.sumRate += rate
	a.sumPower += power
	a.sumResistance += float64(p.Resistance)
	n := float64(s.NumStrokes)
	s.MeanPace = a.sumPace / n
	s.MeanStrokeRate = a.sumRate / n
	s.MeanPower = a.sumPower / n
	s.MeanResistance = a.sumResistance / n
}

// Stats returns a snapshot of the running statistics, or nil before the
// first point.
func (a *Accumulator) Stats() *Stats {
	if a.stats.NumStrokes == 0 {
		return nil
	}
	s := a.stats
	return &s
}

func (a *Accumulator) Reset() {
	*a = Accumulator{}
}

type Rollup struct {
	TotalSessions  int     `json:"total_sessions"`
	TotalStrokes   int     `json:"total_strokes"`
	TotalDistance  float64 `json:"total_distance_m"`
	MeanPower      float64 `json:"avg_watts_all_time"`
	MaxPower       float64 `json:"max_watts_all_time"`
	TotalCalories  float64 `json:"total_calories"`
	MeanStrokeRate float64 `json:"avg_strokes_per_min_all_time"`
}

// Summarize pools the rows of all tables. Tables without the stroke
// columns are counted as sessions but contribute no rows. It returns nil
// if there are no tables.
func Summarize(tables []rws.Table) *Rollup {
	if len(tables) == 0 {
		return nil
	}

	var distance, power, calories, rate []float64
	for _, t := range tables {
		d, ok1 := t.Column(ColumnDistance)
		p, ok2 := t.Column(ColumnPower)
		c, ok3 := t.Column(ColumnCalorieRate)
		r, ok4 := t.Column(ColumnStrokeRate)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		distance = append(distance, d...)
		power = append(power, p...)
		calories = append(calories, c...)
		rate = append(rate, r...)
	}

	r := &Rollup{
		TotalSessions: len(tables),
		TotalStrokes:  len(power),
	}
	if len(power) > 0 {
		r.TotalDistance = floats.Sum(distance)
		r.MeanPower = stat.Mean(power, nil)
		r.MaxPower = floats.Max(power)
		r.TotalCalories = floats.Sum(calories)
		r.MeanStrokeRate = stat.Mean(rate, nil)
	}
	return r
}

type Comparison struct {
	First        *Stats  `json:"session1"`
	Second       *Stats  `json:"session2"`
	DistanceDiff float64 `json:"distance_diff_m"`
	PowerDiff    float64 `json:"power_diff_watts"`
	PaceDiff     float64 `json:"pace_diff_secs"`
}

// Compare reports how the second session differs from the first. It
// returns nil if either has no statistics.
func Compare(first, second *Stats) *Comparison {
	if first == nil || second == nil {
		return nil
	}
	return &Comparison{
		First:        first,
		Second:       second,
		DistanceDiff: second.TotalDistance - first.TotalDistance,
		PowerDiff:    second.MeanPower - first.MeanPower,
		PaceDiff:     second.MeanPace - first.MeanPace,
	}
}
