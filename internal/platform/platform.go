package platform

import (
	"context"
	"fmt"
	"time"

	"privalytics/domain/core"
	"privalytics/domain/research"
	"privalytics/internal/anonymize"
	"privalytics/internal/config"
	"privalytics/internal/consent"
	"privalytics/internal/discovery"
	apperrors "privalytics/internal/errors"
	"privalytics/internal/evidence"
	"privalytics/internal/logging"
	"privalytics/internal/query"
	"privalytics/ports"
)

// Platform is the single boundary facade over the research engines. Every
// operation returns an Envelope; errors and panics never propagate raw to
// callers.
type Platform struct {
	cfg         *config.Config
	ledger      *consent.Ledger
	anonymizer  *anonymize.Engine
	queries     *query.Engine
	discovery   *discovery.Engine
	evidence    *evidence.Engine
	sink        ports.RecordSink
	cache       ports.QueryCache
	clock       core.Clock
	log         *logging.Logger
	initialized bool
	startedAt   core.Timestamp
}

// New wires the platform facade over already-constructed engines.
func New(cfg *config.Config, ledger *consent.Ledger, anonymizer *anonymize.Engine,
	queries *query.Engine, disc *discovery.Engine, ev *evidence.Engine,
	sink ports.RecordSink, cache ports.QueryCache, log *logging.Logger) *Platform {
	return &Platform{
		cfg:        cfg,
		ledger:     ledger,
		anonymizer: anonymizer,
		queries:    queries,
		discovery:  disc,
		evidence:   ev,
		sink:       sink,
		cache:      cache,
		clock:      core.SystemClock,
		log:        log,
	}
}

// WithClock replaces the clock, for tests.
func (p *Platform) WithClock(clock core.Clock) *Platform {
	p.clock = clock
	return p
}

// run executes one facade operation under panic recovery and wraps the
// outcome in an envelope.
func (p *Platform) run(op string, fn func() (interface{}, error)) (env *Envelope) {
	started := p.clock()
	meta := Metadata{
		Timestamp: core.NewTimestamp(started),
		RequestID: core.RequestID(core.NewID()),
	}

	defer func() {
		if r := recover(); r != nil {
			err := panicError(r)
			p.log.Error("%s panicked: %v", op, r)
			meta.ProcessingTimeMs = time.Since(started).Milliseconds()
			env = failure(err, meta)
		}
	}()

	data, err := fn()
	meta.ProcessingTimeMs = time.Since(started).Milliseconds()
	if err != nil {
		p.log.Warn("%s failed: %v", op, err)
		return failure(err, meta)
	}
	return success(data, meta)
}

// Initialize marks the platform ready after re-validating configuration.
// Calling it twice is an error.
func (p *Platform) Initialize(ctx context.Context) *Envelope {
	return p.run("initialize", func() (interface{}, error) {
		if p.initialized {
			return nil, core.ErrAlreadyInitialized
		}
		if err := config.Validate(p.cfg); err != nil {
			return nil, err
		}
		p.initialized = true
		p.startedAt = core.NewTimestamp(p.clock())
		p.log.Info("platform initialized (k=%d, epsilon=%.2f)",
			p.cfg.Anonymization.KAnonymity, p.cfg.Anonymization.Epsilon)
		return map[string]interface{}{"initialized": true}, nil
	})
}

// ServiceStatus is one service's health entry in the status report.
type ServiceStatus struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// PlatformStatus is the GetStatus payload.
type PlatformStatus struct {
	Initialized bool                     `json:"initialized"`
	UptimeSec   int64                    `json:"uptime_seconds"`
	Services    map[string]ServiceStatus `json:"services"`
}

// GetStatus reports per-service health. A service is unhealthy when its
// collaborator is unreachable, not merely idle.
func (p *Platform) GetStatus(ctx context.Context) *Envelope {
	return p.run("get_status", func() (interface{}, error) {
		status := PlatformStatus{
			Initialized: p.initialized,
			Services:    make(map[string]ServiceStatus, 5),
		}
		if p.initialized {
			status.UptimeSec = int64(p.clock().Sub(p.startedAt.Time()).Seconds())
		}

		consentStatus := ServiceStatus{Healthy: true}
		if _, err := p.ledger.Scan(ctx); err != nil {
			consentStatus = ServiceStatus{Healthy: false, Detail: err.Error()}
		}
		status.Services["consent_ledger"] = consentStatus

		status.Services["anonymization"] = ServiceStatus{
			Healthy: true,
			Detail:  fmt.Sprintf("k=%d epsilon=%.2f", p.cfg.Anonymization.KAnonymity, p.cfg.Anonymization.Epsilon),
		}
		status.Services["query_engine"] = ServiceStatus{
			Healthy: true,
			Detail:  fmt.Sprintf("cache entries=%d", p.cache.Len(ctx)),
		}
		status.Services["pattern_discovery"] = ServiceStatus{Healthy: true}
		status.Services["evidence_generation"] = ServiceStatus{Healthy: true}
		return status, nil
	})
}

// SubmitResearchData validates consent for every submitted record's subject
// before anything is stored. One subject without consent rejects the whole
// batch.
func (p *Platform) SubmitResearchData(ctx context.Context, records []research.ResearchRecord, userID, userRole string) *Envelope {
	return p.run("submit_research_data", func() (interface{}, error) {
		if _, err := research.ParseRole(userRole); err != nil {
			return nil, apperrors.Unauthorized(err.Error())
		}
		if len(records) == 0 {
			return nil, apperrors.ValidationError("no records submitted")
		}

		seen := make(map[core.SubjectID]bool)
		subjects := make([]core.SubjectID, 0, len(records))
		for i, r := range records {
			if r.SubjectID == "" || r.SessionID == "" {
				return nil, apperrors.ValidationError(
					fmt.Sprintf("record %d is missing subject or session id", i))
			}
			if !seen[r.SubjectID] {
				seen[r.SubjectID] = true
				subjects = append(subjects, r.SubjectID)
			}
		}

		validation, err := p.ledger.ValidateAccess(ctx, subjects, research.UseAggregateStatistics)
		if err != nil {
			return nil, err
		}
		if len(validation.InvalidSubjects) > 0 {
			return nil, apperrors.ConsentDenied(fmt.Sprintf(
				"%d of %d subjects lack consent for data submission",
				len(validation.InvalidSubjects), len(subjects)))
		}

		if err := p.sink.Store(ctx, records); err != nil {
			return nil, apperrors.Wrap(err, "record store failed")
		}
		p.log.Info("stored %d research records from %s", len(records), userID)
		return map[string]interface{}{"stored": len(records)}, nil
	})
}

// QueryRequest is the ExecuteResearchQuery input: either a structured query
// or a natural-language text to translate.
type QueryRequest struct {
	Query       *research.ResearchQuery `json:"query,omitempty"`
	NaturalText string                  `json:"natural_text,omitempty"`
}

// ExecuteResearchQuery runs a structured or natural-language research query.
func (p *Platform) ExecuteResearchQuery(ctx context.Context, request QueryRequest, userID, userRole string) *Envelope {
	return p.run("execute_research_query", func() (interface{}, error) {
		role, err := research.ParseRole(userRole)
		if err != nil {
			return nil, apperrors.Unauthorized(err.Error())
		}

		var q research.ResearchQuery
		switch {
		case request.Query != nil:
			q = *request.Query
		case request.NaturalText != "":
			q, err = query.NaturalLanguageToQuery(request.NaturalText)
			if err != nil {
				return nil, apperrors.ValidationError(err.Error())
			}
		default:
			return nil, apperrors.ValidationError("either query or natural_text is required")
		}
		if q.ID == "" {
			q.ID = core.QueryID(core.NewID())
		}
		if q.CreatedAt.IsZero() {
			q.CreatedAt = core.NewTimestamp(p.clock())
		}

		return p.queries.ExecuteQuery(ctx, q, userID, role)
	})
}

// DiscoverPatterns runs the pattern discovery pipeline.
func (p *Platform) DiscoverPatterns(ctx context.Context, request research.DiscoveryRequest, userID, userRole string) *Envelope {
	return p.run("discover_patterns", func() (interface{}, error) {
		role, err := research.ParseRole(userRole)
		if err != nil {
			return nil, apperrors.Unauthorized(err.Error())
		}
		return p.discovery.DiscoverPatterns(ctx, request, userID, role)
	})
}

// GenerateEvidenceReport runs hypothesis testing and report assembly.
func (p *Platform) GenerateEvidenceReport(ctx context.Context, request research.EvidenceRequest, userID, userRole string) *Envelope {
	return p.run("generate_evidence_report", func() (interface{}, error) {
		role, err := research.ParseRole(userRole)
		if err != nil {
			return nil, apperrors.Unauthorized(err.Error())
		}
		return p.evidence.GenerateEvidence(ctx, request, userID, role)
	})
}

// ConsentAction is the closed verb set of ManageConsent.
type ConsentAction string

const (
	ConsentActionInitialize ConsentAction = "initialize"
	ConsentActionUpdate     ConsentAction = "update"
	ConsentActionWithdraw   ConsentAction = "withdraw"
)

// ConsentRequest is the ManageConsent input.
type ConsentRequest struct {
	Action      ConsentAction  `json:"action"`
	SubjectID   core.SubjectID `json:"subject_id"`
	Level       string         `json:"level,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	FormVersion string         `json:"form_version,omitempty"`
}

// ManageConsent dispatches a consent lifecycle action to the ledger.
func (p *Platform) ManageConsent(ctx context.Context, request ConsentRequest, userID string) *Envelope {
	return p.run("manage_consent", func() (interface{}, error) {
		if request.SubjectID == "" {
			return nil, apperrors.ValidationError("subject_id is required")
		}

		switch request.Action {
		case ConsentActionInitialize:
			level, err := research.ParseConsentLevel(request.Level)
			if err != nil {
				return nil, apperrors.ValidationError(err.Error())
			}
			return p.ledger.Initialize(ctx, request.SubjectID, level, request.FormVersion, userID)
		case ConsentActionUpdate:
			level, err := research.ParseConsentLevel(request.Level)
			if err != nil {
				return nil, apperrors.ValidationError(err.Error())
			}
			return p.ledger.UpdateConsent(ctx, request.SubjectID, level, request.Reason, request.FormVersion, userID)
		case ConsentActionWithdraw:
			return p.ledger.RequestWithdrawal(ctx, request.SubjectID, userID)
		default:
			return nil, apperrors.ValidationError(fmt.Sprintf("unknown consent action %q", request.Action))
		}
	})
}

// ApprovalDecision is the DecideApproval input.
type ApprovalDecision struct {
	ApprovalID   core.ApprovalID `json:"approval_id"`
	Approve      bool            `json:"approve"`
	Comments     string          `json:"comments,omitempty"`
	Restrictions []string        `json:"restrictions,omitempty"`
}

// DecideApproval approves or rejects a pending query approval. Admins only.
func (p *Platform) DecideApproval(ctx context.Context, decision ApprovalDecision, userID, userRole string) *Envelope {
	return p.run("decide_approval", func() (interface{}, error) {
		role, err := research.ParseRole(userRole)
		if err != nil {
			return nil, apperrors.Unauthorized(err.Error())
		}
		if role != research.RoleAdmin {
			return nil, apperrors.Unauthorized(
				fmt.Sprintf("role %s may not decide query approvals", role))
		}
		return p.queries.ApproveQuery(ctx, decision.ApprovalID, userID,
			decision.Approve, decision.Comments, decision.Restrictions)
	})
}

// PendingApprovals lists approvals awaiting a decision. Admins only.
func (p *Platform) PendingApprovals(ctx context.Context, userRole string) *Envelope {
	return p.run("pending_approvals", func() (interface{}, error) {
		role, err := research.ParseRole(userRole)
		if err != nil {
			return nil, apperrors.Unauthorized(err.Error())
		}
		if role != research.RoleAdmin {
			return nil, apperrors.Unauthorized(
				fmt.Sprintf("role %s may not list query approvals", role))
		}
		return p.queries.PendingApprovals(ctx)
	})
}

// GetAuditTrail returns a subject's consent audit trail, auditors and admins
// only.
func (p *Platform) GetAuditTrail(ctx context.Context, subjectID core.SubjectID, limit int, userRole string) *Envelope {
	return p.run("get_audit_trail", func() (interface{}, error) {
		role, err := research.ParseRole(userRole)
		if err != nil {
			return nil, apperrors.Unauthorized(err.Error())
		}
		if role != research.RoleAuditor && role != research.RoleAdmin {
			return nil, apperrors.Unauthorized(
				fmt.Sprintf("role %s may not read audit trails", role))
		}
		return p.ledger.AuditTrail(ctx, subjectID, limit)
	})
}
