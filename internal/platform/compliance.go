package platform

import (
	"context"
	"fmt"

	"privalytics/domain/core"
	"privalytics/domain/research"
	apperrors "privalytics/internal/errors"
)

// ComplianceReport is the GenerateComplianceReport payload: an aggregate
// consent posture snapshot with the active privacy configuration. It carries
// no subject identifiers.
type ComplianceReport struct {
	GeneratedAt        core.Timestamp `json:"generated_at"`
	TotalSubjects      int            `json:"total_subjects"`
	ConsentByLevel     map[string]int `json:"consent_by_level"`
	WithdrawalsPending int            `json:"withdrawals_pending"`
	DataPurged         int            `json:"data_purged"`
	ConsentExpired     int            `json:"consent_expired"`
	KAnonymity         int            `json:"k_anonymity"`
	Epsilon            float64        `json:"epsilon"`
	FieldEncryption    bool           `json:"field_encryption"`
	AuditRetentionDays int            `json:"audit_retention_days"`
	GracePeriodHours   int            `json:"grace_period_hours"`
	Notes              []string       `json:"notes,omitempty"`
}

// GenerateComplianceReport aggregates the consent ledger into a
// subject-free compliance snapshot. Auditors and admins only.
func (p *Platform) GenerateComplianceReport(ctx context.Context, userRole string) *Envelope {
	return p.run("generate_compliance_report", func() (interface{}, error) {
		role, err := research.ParseRole(userRole)
		if err != nil {
			return nil, apperrors.Unauthorized(err.Error())
		}
		if role != research.RoleAuditor && role != research.RoleAdmin {
			return nil, apperrors.Unauthorized(
				fmt.Sprintf("role %s may not generate compliance reports", role))
		}

		records, err := p.ledger.Scan(ctx)
		if err != nil {
			return nil, err
		}

		now := core.NewTimestamp(p.clock())
		report := ComplianceReport{
			GeneratedAt:        now,
			TotalSubjects:      len(records),
			ConsentByLevel:     make(map[string]int, 4),
			KAnonymity:         p.cfg.Anonymization.KAnonymity,
			Epsilon:            p.cfg.Anonymization.Epsilon,
			FieldEncryption:    p.cfg.Anonymization.EncryptFields,
			AuditRetentionDays: int(p.cfg.Consent.AuditRetention.Hours() / 24),
			GracePeriodHours:   int(p.cfg.Consent.WithdrawalGracePeriod.Hours()),
		}
		for _, r := range records {
			report.ConsentByLevel[r.CurrentLevel.String()]++
			if r.WithdrawalRequested && !r.DataPurged {
				report.WithdrawalsPending++
			}
			if r.DataPurged {
				report.DataPurged++
			}
			if !r.ExpirationDate.IsZero() && r.ExpirationDate.Before(now) && !r.DataPurged {
				report.ConsentExpired++
			}
		}

		if report.WithdrawalsPending > 0 {
			report.Notes = append(report.Notes, fmt.Sprintf(
				"%d withdrawal(s) awaiting grace-period completion", report.WithdrawalsPending))
		}
		if report.ConsentExpired > 0 {
			report.Notes = append(report.Notes, fmt.Sprintf(
				"%d subject(s) hold expired consent and are excluded from research use", report.ConsentExpired))
		}
		return report, nil
	})
}
