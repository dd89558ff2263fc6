package discovery

import (
	"context"
	"fmt"
	"math"

	"privalytics/domain/core"
	"privalytics/domain/research"

	"github.com/montanaflynn/stats"
)

// findClusters runs k-means over the per-record feature vector built from
// the requested metrics. k is bounded by min(configured k, n); centroids are
// initialized by sampling distinct records without replacement from the
// injected RNG so tests can pin the outcome.
func (e *Engine) findClusters(ctx context.Context, metrics []string, records []research.ResearchRecord) ([]research.Pattern, error) {
	vectors, ids := featureVectors(records, metrics)
	if len(vectors) < e.cfg.MinSampleSize {
		return nil, nil
	}

	k := e.cfg.ClusterK
	if k > len(vectors) {
		k = len(vectors)
	}
	if k < 2 {
		return nil, nil
	}

	centroids, assignments, err := e.kmeans(ctx, vectors, k)
	if err != nil {
		return nil, err
	}

	patterns := make([]research.Pattern, 0, k)
	for c := 0; c < k; c++ {
		memberIDs := make([]string, 0)
		members := make([][]float64, 0)
		for i, a := range assignments {
			if a == c {
				memberIDs = append(memberIDs, ids[i])
				members = append(members, vectors[i])
			}
		}
		if len(members) == 0 {
			continue
		}

		patterns = append(patterns, research.Pattern{
			ID:          core.NewID(),
			Type:        research.PatternCluster,
			Description: fmt.Sprintf("cluster of %d sessions around %s", len(members), centroidSummary(metrics, centroids[c])),
			Priority:    1,
			Confidence:  float64(len(members)) / float64(len(vectors)),
			SampleSize:  len(members),
			Cluster: &research.ClusterPattern{
				ClusterIndex: c,
				MemberIDs:    memberIDs,
				Centroid:     centroids[c],
				Features:     characterize(metrics, members),
			},
			DiscoveredAt: core.Now(),
		})
	}
	return patterns, nil
}

// kmeans iterates assign and update until centroid movement falls below the
// convergence threshold or the iteration cap is hit.
func (e *Engine) kmeans(ctx context.Context, vectors [][]float64, k int) (centroids [][]float64, assignments []int, err error) {
	rng := e.rng.Stream("kmeans_init", int64(len(vectors)))

	// Random initialization without replacement.
	perm := rng.Perm(len(vectors))
	centroids = make([][]float64, k)
	for c := 0; c < k; c++ {
		centroids[c] = append([]float64(nil), vectors[perm[c]]...)
	}

	assignments = make([]int, len(vectors))
	for iter := 0; iter < e.cfg.ClusterMaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		// Assign each vector to its nearest centroid.
		for i, v := range vectors {
			best, bestDist := 0, math.Inf(1)
			for c := range centroids {
				if d := euclidean(v, centroids[c]); d < bestDist {
					best, bestDist = c, d
				}
			}
			assignments[i] = best
		}

		// Update centroids to member means.
		movement := 0.0
		for c := range centroids {
			sum := make([]float64, len(centroids[c]))
			count := 0
			for i, a := range assignments {
				if a != c {
					continue
				}
				for d := range sum {
					sum[d] += vectors[i][d]
				}
				count++
			}
			if count == 0 {
				continue // empty cluster keeps its centroid
			}
			updated := make([]float64, len(sum))
			for d := range sum {
				updated[d] = sum[d] / float64(count)
			}
			movement += euclidean(centroids[c], updated)
			centroids[c] = updated
		}

		if movement < e.cfg.ClusterConvergence {
			break
		}
	}
	return centroids, assignments, nil
}

// featureVectors builds one vector per record covering all requested
// metrics; records missing any metric are excluded.
func featureVectors(records []research.ResearchRecord, metrics []string) (vectors [][]float64, ids []string) {
	for _, r := range records {
		v := make([]float64, 0, len(metrics))
		complete := true
		for _, metric := range metrics {
			value, ok := lookupMetric(r, metric)
			if !ok {
				complete = false
				break
			}
			v = append(v, value)
		}
		if complete {
			vectors = append(vectors, v)
			ids = append(ids, r.SessionID.String())
		}
	}
	return vectors, ids
}

// characterize computes per-feature (mean, stddev, min, max) across the
// cluster members.
func characterize(metrics []string, members [][]float64) map[string]research.FeatureStats {
	out := make(map[string]research.FeatureStats, len(metrics))
	for d, metric := range metrics {
		column := make([]float64, len(members))
		for i, m := range members {
			column[i] = m[d]
		}
		mean, _ := stats.Mean(column)
		stdDev, _ := stats.StandardDeviation(column)
		min, _ := stats.Min(column)
		max, _ := stats.Max(column)
		out[metric] = research.FeatureStats{Mean: mean, StdDev: stdDev, Min: min, Max: max}
	}
	return out
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func centroidSummary(metrics []string, centroid []float64) string {
	s := ""
	for i, metric := range metrics {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s=%.2f", metric, centroid[i])
	}
	return s
}
