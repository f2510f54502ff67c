package optimizer

import (
	"github.com/montanaflynn/stats"

	"go.viam.com/posegraph/graph"
)

// ErrorSummary describes the distribution of per edge chi2 values.
type ErrorSummary struct {
	Count  int
	Total  float64
	Mean   float64
	Median float64
	P95    float64
	Max    float64
}

// Summarize computes an ErrorSummary from the last computed errors of edges.
func Summarize(edges []graph.Edge) (ErrorSummary, error) {
	if len(edges) == 0 {
		return ErrorSummary{}, nil
	}
	data := make(stats.Float64Data, len(edges))
	for i, e := range edges {
		data[i] = graph.Chi2(e)
	}
	var s ErrorSummary
	var err error
	s.Count = len(data)
	if s.Total, err = data.Sum(); err != nil {
		return ErrorSummary{}, err
	}
	if s.Mean, err = data.Mean(); err != nil {
		return ErrorSummary{}, err
	}
	if s.Median, err = data.Median(); err != nil {
		return ErrorSummary{}, err
	}
	if s.P95, err = data.Percentile(95); err != nil {
		return ErrorSummary{}, err
	}
	if s.Max, err = data.Max(); err != nil {
		return ErrorSummary{}, err
	}
	return s, nil
}

// Summary recomputes the active errors and summarizes them.
func (o *Optimizer) Summary() (ErrorSummary, error) {
	o.computeErrors()
	return Summarize(o.activeEdges)
}
