package metrics

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// StatSummary holds summary statistics over a set of wall-clock samples.
type StatSummary struct {
	Count int
	Mean  time.Duration
	P50   time.Duration
	P95   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// StageResult summarizes one named stage across every recorder added to the analyzer.
type StageResult struct {
	Name      string
	Type      MeasurementType
	WallClock StatSummary
	// Self is the wall clock minus the time spent in child stages.
	Self StatSummary
}

// Analyzer aggregates stage timings from many recorders, e.g. one per cast vote.
type Analyzer struct {
	recorders []*Recorder
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Add collects a recorder.
func (a *Analyzer) Add(recorder *Recorder) {
	if recorder != nil {
		a.recorders = append(a.recorders, recorder)
	}
}

type samples struct {
	mType      MeasurementType
	wall, self []time.Duration
}

// Analyze returns one result per stage name, sorted by name.
func (a *Analyzer) Analyze() []StageResult {
	byName := make(map[string]*samples)
	for _, rec := range a.recorders {
		for _, root := range rec.Roots() {
			collect(root, byName)
		}
	}

	results := make([]StageResult, 0, len(byName))
	for name, s := range byName {
		results = append(results, StageResult{
			Name:      name,
			Type:      s.mType,
			WallClock: Summarize(s.wall),
			Self:      Summarize(s.self),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

func collect(m *Measurement, byName map[string]*samples) {
	s, ok := byName[m.Name]
	if !ok {
		s = &samples{mType: m.Type}
		byName[m.Name] = s
	}
	var childWall time.Duration
	for _, c := range m.Children {
		childWall += c.Totals.WallClock
		collect(c, byName)
	}
	s.wall = append(s.wall, m.Totals.WallClock)
	s.self = append(s.self, maxDuration(0, m.Totals.WallClock-childWall))
}

// Summarize computes summary statistics over durations.
func Summarize(durations []time.Duration) StatSummary {
	if len(durations) == 0 {
		return StatSummary{}
	}

	floats := make([]float64, len(durations))
	for i, v := range durations {
		floats[i] = float64(v.Microseconds())
	}
	sort.Float64s(floats)

	return StatSummary{
		Count: len(durations),
		Mean:  time.Duration(stat.Mean(floats, nil)) * time.Microsecond,
		P50:   time.Duration(stat.Quantile(0.5, stat.Empirical, floats, nil)) * time.Microsecond,
		P95:   time.Duration(stat.Quantile(0.95, stat.Empirical, floats, nil)) * time.Microsecond,
		Min:   time.Duration(floats[0]) * time.Microsecond,
		Max:   time.Duration(floats[len(floats)-1]) * time.Microsecond,
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
