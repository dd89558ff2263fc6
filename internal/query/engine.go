package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"privalytics/domain/core"
	"privalytics/domain/research"
	"privalytics/internal/anonymize"
	"privalytics/internal/config"
	"privalytics/internal/consent"
	apperrors "privalytics/internal/errors"
	"privalytics/internal/logging"
	"privalytics/ports"
)

// Engine validates, gates, executes, and anonymizes research queries. Every
// result leaving the engine has passed through the anonymization pipeline at
// the level declared on the query; raw records never cross this boundary.
type Engine struct {
	cfg        config.QueryConfig
	source     ports.RecordSource
	cache      ports.QueryCache
	approvals  ports.ApprovalRepository
	ledger     *consent.Ledger
	anonymizer *anonymize.Engine
	log        *logging.Logger
}

// NewEngine wires the query engine to its collaborators.
func NewEngine(cfg config.QueryConfig, source ports.RecordSource, cache ports.QueryCache,
	approvals ports.ApprovalRepository, ledger *consent.Ledger, anonymizer *anonymize.Engine,
	log *logging.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		source:     source,
		cache:      cache,
		approvals:  approvals,
		ledger:     ledger,
		anonymizer: anonymizer,
		log:        log,
	}
}

// ExecuteQuery runs the full query algorithm: validate, approval gate,
// cache, execute, anonymize, cache, annotate.
func (e *Engine) ExecuteQuery(ctx context.Context, q research.ResearchQuery, userID string, role research.Role) (*research.QueryResult, error) {
	started := time.Now()

	// 1. Validation happens before any data access.
	score := ComplexityScore(q)
	if score > e.cfg.ComplexityCeiling {
		return nil, apperrors.ValidationError(
			fmt.Sprintf("query complexity %d exceeds ceiling %d", score, e.cfg.ComplexityCeiling))
	}
	if !role.Permits(q.Type) {
		return nil, apperrors.Unauthorized(
			fmt.Sprintf("role %s is not permitted to run %s queries", role, q.Type))
	}

	// 2. Approval gate: a query requiring approval without one short-circuits
	// with pending-approval and never returns data.
	if q.RequiresApproval {
		approved, err := e.approvalGranted(ctx, q, userID)
		if err != nil {
			return nil, err
		}
		if !approved {
			return &research.QueryResult{
				QueryID: q.ID,
				Status:  research.StatusPendingApproval,
				Message: "query requires approval before execution",
				Performance: research.QueryPerformance{
					ComplexityScore: score,
					ExecutionTimeMs: time.Since(started).Milliseconds(),
				},
			}, nil
		}
	}

	// 3. Cohort and longitudinal queries validate consent for every
	// referenced subject before touching the store; one invalid subject
	// fails the whole request so no partial cohort ever leaks.
	if q.Type == research.QueryCohort || q.Type == research.QueryLongitudinal {
		if err := e.validateCohortConsent(ctx, q); err != nil {
			return nil, err
		}
	}

	// 4. Cache lookup keyed by content hash, never query id.
	key := q.ContentHash()
	if cached, ok := e.cache.Get(ctx, key); ok {
		cached.QueryID = q.ID
		cached.Performance.CacheHit = true
		cached.Performance.ComplexityScore = score
		cached.Performance.ExecutionTimeMs = time.Since(started).Milliseconds()
		e.log.Debug("cache hit for query %s (%s)", q.ID, key)
		return cached, nil
	}

	// 5. Execute with the configured timeout.
	execCtx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()

	records, err := e.source.Fetch(execCtx, e.filterFor(q))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.QueryTimeout(q.ID.String())
		}
		return nil, apperrors.ExecutionError(q.ID.String(), err)
	}

	// 6. Anonymize at the level declared on the query.
	anonymized, err := e.anonymizer.Anonymize(execCtx, records, q.AnonymizationLevel)
	if err != nil {
		return nil, apperrors.ExecutionError(q.ID.String(), err)
	}

	result := &research.QueryResult{
		QueryID: q.ID,
		Status:  research.StatusCompleted,
		Records: anonymized.Records,
		Metrics: &anonymized.Metrics,
		Performance: research.QueryPerformance{
			ExecutionTimeMs: time.Since(started).Milliseconds(),
			ResultSize:      len(anonymized.Records),
			ComplexityScore: score,
		},
	}

	// 7. Cache the anonymized result.
	if err := e.cache.Put(ctx, key, result); err != nil {
		// Cache unavailability fails only the optimization, not the query.
		e.log.Warn("cache write failed for query %s: %v", q.ID, err)
	}

	return result, nil
}

// approvalGranted reports whether the query holds an approved approval.
func (e *Engine) approvalGranted(ctx context.Context, q research.ResearchQuery, userID string) (bool, error) {
	approval, err := e.approvals.GetByQuery(ctx, q.ID)
	if err != nil {
		if core.IsNotFoundError(err) {
			// First sight of this query: open the approval workflow.
			if _, err := e.RequestQueryApproval(ctx, q, userID); err != nil {
				return false, err
			}
			return false, nil
		}
		return false, err
	}

	switch approval.State {
	case research.ApprovalApproved:
		return true, nil
	case research.ApprovalRejected:
		return false, apperrors.Unauthorized(
			fmt.Sprintf("query %s approval was rejected", q.ID))
	default:
		return false, nil
	}
}

// validateCohortConsent fails the whole request if any referenced subject
// lacks consent for the use implied by the query type.
func (e *Engine) validateCohortConsent(ctx context.Context, q research.ResearchQuery) error {
	if len(q.SubjectIDs) == 0 {
		return apperrors.ValidationError(fmt.Sprintf("%s query must reference subject ids", q.Type))
	}

	use := research.UseAnonymizedResearch
	if q.Type == research.QueryLongitudinal {
		use = research.UseLongitudinalStudy
	}

	validation, err := e.ledger.ValidateAccess(ctx, q.SubjectIDs, use)
	if err != nil {
		return err
	}
	if len(validation.InvalidSubjects) > 0 {
		return apperrors.ConsentDenied(
			fmt.Sprintf("%d of %d subjects lack consent for %s",
				len(validation.InvalidSubjects), len(q.SubjectIDs), use))
	}
	return nil
}

func (e *Engine) filterFor(q research.ResearchQuery) ports.RecordFilter {
	filter := ports.RecordFilter{SubjectIDs: q.SubjectIDs}
	if v, ok := q.Parameters["start_time"].(time.Time); ok {
		filter.StartTime = core.NewTimestamp(v)
	}
	if v, ok := q.Parameters["end_time"].(time.Time); ok {
		filter.EndTime = core.NewTimestamp(v)
	}
	if v, ok := q.Parameters["limit"].(int); ok {
		filter.Limit = v
	}
	return filter
}
