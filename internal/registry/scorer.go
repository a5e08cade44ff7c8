package registry

import (
	"math/rand"
	"sort"
)

// Score rates a replica for routing: fewer in-flight batches is better.
// In-flight count is the only per-replica signal an in-process runner
// pool actually has; there is no remote GPU telemetry to key off here.
func Score(e *ReplicaEntry) float64 {
	if e == nil || !e.Healthy {
		return -1000
	}
	return -float64(e.InFlight.Load())
}

// pickWeighted chooses among the top-3 scored replicas with probability
// proportional to score: scores are shifted positive (worst of the
// top-N becomes weight 1) so a trailing candidate still has some chance,
// not just the leader.
func pickWeighted(candidates []*ReplicaEntry) *ReplicaEntry {
	type scored struct {
		entry *ReplicaEntry
		score float64
	}
	scoredList := make([]scored, len(candidates))
	for i, e := range candidates {
		scoredList[i] = scored{entry: e, score: Score(e)}
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].score > scoredList[j].score })

	topN := 3
	if topN > len(scoredList) {
		topN = len(scoredList)
	}
	top := scoredList[:topN]

	minScore := top[topN-1].score
	weights := make([]float64, topN)
	totalWeight := 0.0
	for i, c := range top {
		weights[i] = c.score - minScore + 1
		totalWeight += weights[i]
	}

	pick := rand.Float64() * totalWeight
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if pick <= cumulative {
			return top[i].entry
		}
	}
	return top[0].entry
}
