package anonymize

import (
	"context"
	"fmt"

	"privalytics/domain/research"
	"privalytics/internal/config"
	"privalytics/internal/errors"
	"privalytics/internal/logging"
	"privalytics/ports"
)

// Engine transforms raw research records into privacy-safe records. The
// pipeline is strictly ordered: k-anonymity generalization, differential
// privacy noise, temporal obfuscation, field-level encryption, cross-session
// delinkage. Each run is independent; delinkage tokens are never reused
// across runs.
type Engine struct {
	cfg    config.AnonymizationConfig
	cipher *fieldCipher // nil when encryption is disabled
	rng    ports.RNGPort
	log    *logging.Logger
}

// NewEngine constructs the engine. A missing or malformed encryption key is
// a fatal configuration error here, never a per-record error later.
func NewEngine(cfg config.AnonymizationConfig, keys ports.KeyProvider, rng ports.RNGPort, log *logging.Logger) (*Engine, error) {
	if cfg.KAnonymity < 2 {
		return nil, errors.ConfigInvalid(fmt.Sprintf("k-anonymity minimum must be at least 2, got %d", cfg.KAnonymity))
	}
	if cfg.Epsilon <= 0 || cfg.TemporalEpsilon <= 0 {
		return nil, errors.ConfigInvalid("epsilon values must be positive")
	}

	e := &Engine{cfg: cfg, rng: rng, log: log}

	if cfg.EncryptFields {
		if keys == nil {
			return nil, errors.ConfigInvalid("field encryption enabled but no key provider configured")
		}
		key, err := keys.EncryptionKey()
		if err != nil {
			return nil, errors.Wrap(err, "encryption key unavailable")
		}
		cipher, err := newFieldCipher(key)
		if err != nil {
			return nil, errors.Wrap(err, "invalid encryption key")
		}
		e.cipher = cipher
	}

	return e, nil
}

// Anonymize runs the full pipeline and returns a new result; the input
// records are never mutated.
func (e *Engine) Anonymize(ctx context.Context, records []research.ResearchRecord, level research.ConsentLevel) (*research.AnonymizationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]research.ResearchRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}

	result := &research.AnonymizationResult{}

	// Stage 1: k-anonymity generalization.
	undersized := e.generalize(out)
	result.AuditLog = append(result.AuditLog, auditOp("k_anonymity_generalization",
		fmt.Sprintf("k=%d undersized_partitions=%d", e.cfg.KAnonymity, undersized), len(out)))

	// Stage 2: differential privacy noise on sensitive measures.
	noised := e.addMeasureNoise(out)
	result.AuditLog = append(result.AuditLog, auditOp("differential_privacy",
		fmt.Sprintf("epsilon=%.3f values_noised=%d", e.cfg.Epsilon, noised), len(out)))

	// Stage 3: temporal obfuscation.
	e.obfuscateTemporal(out)
	result.AuditLog = append(result.AuditLog, auditOp("temporal_obfuscation",
		fmt.Sprintf("epsilon=%.3f", e.cfg.TemporalEpsilon), len(out)))

	// Stage 4: field-level encryption.
	if e.cipher != nil {
		if err := e.encryptFields(out); err != nil {
			return nil, errors.Wrap(err, "field encryption failed")
		}
		result.AuditLog = append(result.AuditLog, auditOp("field_encryption", "aes-gcm randomized", len(out)))
	}

	// Stage 5: cross-session delinkage.
	e.delink(out)
	result.AuditLog = append(result.AuditLog, auditOp("session_delinkage", "run-local token table", len(out)))

	result.Records = out
	result.Metrics = e.computeMetrics(out)
	result.Metrics.UndersizedPartitions = undersized

	if undersized > 0 {
		e.log.Warn("anonymization left %d partition(s) below k=%d after maximum generalization",
			undersized, e.cfg.KAnonymity)
	}

	return result, nil
}

// Validate re-runs the partitioning check without mutating data and returns
// actionable issues. Used for pre-flight checks.
func (e *Engine) Validate(records []research.ResearchRecord) research.ValidationReport {
	partitions := partition(records)

	report := research.ValidationReport{
		Valid:   true,
		Checked: len(records),
		KValue:  minPartitionSize(partitions),
	}

	for key, members := range partitions {
		if len(members) < e.cfg.KAnonymity {
			report.Valid = false
			report.Issues = append(report.Issues, research.ValidationIssue{
				Partition:      key,
				Size:           len(members),
				Issue:          fmt.Sprintf("partition has %d record(s), below k=%d", len(members), e.cfg.KAnonymity),
				Recommendation: "widen quasi-identifier buckets or collect more records for this cohort",
			})
		}
	}
	return report
}

// computeMetrics re-partitions the output on the quasi-identifier tuple.
func (e *Engine) computeMetrics(records []research.ResearchRecord) research.PrivacyMetrics {
	partitions := partition(records)

	singletons := 0
	for _, members := range partitions {
		if len(members) == 1 {
			singletons++
		}
	}

	uniqueness := 0.0
	if len(partitions) > 0 {
		uniqueness = float64(singletons) / float64(len(partitions))
	}

	risk := uniqueness * 10
	if risk > 1 {
		risk = 1
	}

	return research.PrivacyMetrics{
		KValue:               minPartitionSize(partitions),
		EpsilonValue:         e.cfg.Epsilon,
		UniquenessScore:      uniqueness,
		ReidentificationRisk: risk,
	}
}

func auditOp(op, detail string, n int) research.AuditOperation {
	return research.AuditOperation{
		Operation: op,
		Detail:    detail,
		Records:   n,
		AppliedAt: nowTS(),
	}
}
