package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"privalytics/domain/core"
	"privalytics/domain/research"
	"privalytics/internal/config"
	apperrors "privalytics/internal/errors"
	"privalytics/internal/logging"
	"privalytics/internal/query"
	"privalytics/ports"

	"golang.org/x/sync/errgroup"
)

// Engine discovers statistical patterns in the anonymized corpus. All data
// access goes through the query engine, so every record the analyses see has
// already been through the anonymization pipeline.
type Engine struct {
	cfg config.DiscoveryConfig
	qe  *query.Engine
	rng ports.RNGPort
	log *logging.Logger
}

// NewEngine creates a pattern discovery engine.
func NewEngine(cfg config.DiscoveryConfig, qe *query.Engine, rng ports.RNGPort, log *logging.Logger) *Engine {
	return &Engine{cfg: cfg, qe: qe, rng: rng, log: log}
}

// DiscoverPatterns runs the requested pattern analyses and returns patterns
// ranked by (priority, confidence) and truncated to the configured maximum.
// Sub-analyses are independent, so they fan out concurrently and fan back
// into one result set.
func (e *Engine) DiscoverPatterns(ctx context.Context, request research.DiscoveryRequest, userID string, role research.Role) (*research.PatternDiscoveryResult, error) {
	if len(request.Types) == 0 {
		return nil, apperrors.ValidationError("discovery request must name at least one pattern type")
	}
	if len(request.Metrics) == 0 {
		return nil, apperrors.ValidationError("discovery request must name at least one metric")
	}

	records, err := e.fetchRecords(ctx, request, userID, role)
	if err != nil {
		return nil, err
	}
	if len(records) < e.cfg.MinSampleSize {
		return nil, fmt.Errorf("%w: %d records, need at least %d",
			core.ErrInsufficientData, len(records), e.cfg.MinSampleSize)
	}

	var (
		mu       sync.Mutex
		patterns []research.Pattern
	)
	g, gctx := errgroup.WithContext(ctx)

	for _, patternType := range request.Types {
		pt := patternType
		g.Go(func() error {
			found, err := e.runAnalysis(gctx, pt, request, records)
			if err != nil {
				return err
			}
			mu.Lock()
			patterns = append(patterns, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rankPatterns(patterns)
	max := request.MaxResults
	if max <= 0 || max > e.cfg.MaxPatterns {
		max = e.cfg.MaxPatterns
	}
	if len(patterns) > max {
		patterns = patterns[:max]
	}

	return &research.PatternDiscoveryResult{
		RequestID: core.RequestID(core.NewID()),
		Patterns:  patterns,
		Examined:  len(records),
		CreatedAt: core.Now(),
	}, nil
}

func (e *Engine) runAnalysis(ctx context.Context, pt research.PatternType, request research.DiscoveryRequest, records []research.ResearchRecord) ([]research.Pattern, error) {
	switch pt {
	case research.PatternCorrelation:
		return e.findCorrelations(request.Metrics, records), nil
	case research.PatternTrend:
		return e.findTrends(request.Metrics, records), nil
	case research.PatternAnomaly:
		return e.findAnomalies(request.Metrics, records), nil
	case research.PatternCluster:
		return e.findClusters(ctx, request.Metrics, records)
	default:
		return nil, apperrors.ValidationError(fmt.Sprintf("unknown pattern type %q", pt))
	}
}

// fetchRecords issues one pattern-discovery query through the query engine.
func (e *Engine) fetchRecords(ctx context.Context, request research.DiscoveryRequest, userID string, role research.Role) ([]research.ResearchRecord, error) {
	q := research.ResearchQuery{
		ID:   core.QueryID(core.NewID()),
		Type: research.QueryPattern,
		Parameters: map[string]interface{}{
			"metrics": request.Metrics,
		},
		AnonymizationLevel: research.ConsentLimited,
		CreatedAt:          core.Now(),
	}
	if !request.StartTime.IsZero() {
		q.Parameters["start_time"] = request.StartTime.Time()
	}
	if !request.EndTime.IsZero() {
		q.Parameters["end_time"] = request.EndTime.Time()
	}

	result, err := e.qe.ExecuteQuery(ctx, q, userID, role)
	if err != nil {
		return nil, err
	}
	if result.Status != research.StatusCompleted {
		return nil, apperrors.ExecutionError(q.ID.String(),
			fmt.Errorf("discovery sub-query ended with status %s", result.Status))
	}
	return result.Records, nil
}

// rankPatterns orders by priority, then confidence, both descending.
func rankPatterns(patterns []research.Pattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Priority != patterns[j].Priority {
			return patterns[i].Priority > patterns[j].Priority
		}
		return patterns[i].Confidence > patterns[j].Confidence
	})
}

// ValidatePatterns re-checks sample size and significance against the active
// thresholds, partitioning patterns into valid and invalid. Downstream
// evidence generation only consumes the valid side.
func (e *Engine) ValidatePatterns(patterns []research.Pattern) research.PatternValidation {
	validation := research.PatternValidation{
		Valid:   make([]research.Pattern, 0, len(patterns)),
		Invalid: make([]research.Pattern, 0),
	}

	for _, p := range patterns {
		reason := ""
		switch {
		case p.SampleSize < e.cfg.MinSampleSize:
			reason = fmt.Sprintf("sample size %d below minimum %d", p.SampleSize, e.cfg.MinSampleSize)
		case p.Confidence < e.cfg.MinConfidence:
			reason = fmt.Sprintf("confidence %.2f below minimum %.2f", p.Confidence, e.cfg.MinConfidence)
		case p.Type == research.PatternCorrelation && p.Significance > e.cfg.SignificanceLevel:
			reason = fmt.Sprintf("p-value %.4f above alpha %.3f", p.Significance, e.cfg.SignificanceLevel)
		}

		if reason == "" {
			validation.Valid = append(validation.Valid, p)
		} else {
			validation.Invalid = append(validation.Invalid, p)
			validation.Report += fmt.Sprintf("%s pattern %s: %s\n", p.Type, p.ID, reason)
		}
	}

	if validation.Report == "" {
		validation.Report = fmt.Sprintf("all %d patterns passed validation", len(patterns))
	}
	return validation
}

// metricSeries extracts one metric's values across records, in record order.
// Records missing the metric are skipped; indices map back to the records
// that contributed.
func metricSeries(records []research.ResearchRecord, metric string) (values []float64, indices []int) {
	for i, r := range records {
		if v, ok := lookupMetric(r, metric); ok {
			values = append(values, v)
			indices = append(indices, i)
		}
	}
	return values, indices
}

func lookupMetric(r research.ResearchRecord, metric string) (float64, bool) {
	if metric == "session_duration" {
		return r.SessionDuration, true
	}
	if v, ok := r.EmotionScores[metric]; ok {
		return v, true
	}
	if v, ok := r.TechniqueScores[metric]; ok {
		return v, true
	}
	return 0, false
}
