package analysis

import (
	"math"
	"sort"
)

// Combine flattens every WindowSummary's TestResults (sorted by window
// ascending), applies the Benjamini-Hochberg step-down adjustment to the
// p-values, writes the resulting q-values back into each summary, and
// Stouffer-combines the z-scores into a single GDI.
func Combine(summaries map[int][]TestResult) CombinedStats {
	windows := make([]int, 0, len(summaries))
	for w := range summaries {
		windows = append(windows, w)
	}
	sort.Ints(windows)

	type flatResult struct {
		key    string
		pValue float64
		zScore float64
	}
	var flat []flatResult
	for _, w := range windows {
		for _, r := range summaries[w] {
			flat = append(flat, flatResult{key: r.Key(), pValue: r.PValue, zScore: r.ZScore})
		}
	}

	out := CombinedStats{QValues: make(map[string]float64)}
	if len(flat) == 0 {
		for _, w := range windows {
			out.Summaries = append(out.Summaries, WindowSummary{Window: w, QValues: map[string]float64{}})
		}
		return out
	}

	sort.SliceStable(flat, func(i, j int) bool { return flat[i].pValue < flat[j].pValue })

	m := float64(len(flat))
	mu := 1.0
	q := make(map[string]float64, len(flat))
	for r := len(flat); r >= 1; r-- {
		item := flat[r-1]
		mu = math.Min(mu, item.pValue*m/float64(r))
		q[item.key] = math.Min(1.0, mu)
	}

	var zSum float64
	for _, item := range flat {
		zSum += item.zScore
	}
	gdi := zSum / math.Sqrt(m)

	for _, w := range windows {
		results := summaries[w]
		ws := WindowSummary{Window: w, Results: results, QValues: make(map[string]float64, len(results))}
		for _, r := range results {
			if qv, ok := q[r.Key()]; ok {
				ws.QValues[r.Key()] = qv
			} else {
				ws.QValues[r.Key()] = 1.0
			}
		}
		out.Summaries = append(out.Summaries, ws)
	}

	for k, v := range q {
		out.QValues[k] = v
	}
	out.GDI = gdi
	return out
}
