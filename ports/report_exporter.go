package ports

import (
	"context"

	"privalytics/domain/research"
)

// ReportExporter renders an evidence report to an external artifact format
// (e.g. a spreadsheet workbook for review committees).
type ReportExporter interface {
	// Export renders the report and returns the serialized artifact.
	Export(ctx context.Context, report *research.EvidenceReport) ([]byte, error)
}
