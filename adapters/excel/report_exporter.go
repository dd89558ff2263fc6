package excel

import (
	"bytes"
	"context"
	"fmt"

	"privalytics/domain/research"
	"privalytics/ports"

	"github.com/xuri/excelize/v2"
)

// ReportExporter renders an evidence report as an xlsx workbook: one Findings
// sheet with the per-hypothesis numbers, one Summary sheet with the prose
// sections.
type ReportExporter struct{}

// NewReportExporter creates a new workbook exporter.
func NewReportExporter() *ReportExporter {
	return &ReportExporter{}
}

// Export renders the report into xlsx bytes.
func (x *ReportExporter) Export(ctx context.Context, report *research.EvidenceReport) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const findingsSheet = "Findings"
	if err := f.SetSheetName("Sheet1", findingsSheet); err != nil {
		return nil, err
	}

	header := []interface{}{
		"Hypothesis", "Test", "Statistic", "P-Value", "Effect Size",
		"CI Low", "CI High", "N", "Magnitude", "Significant", "Supported",
	}
	if err := f.SetSheetRow(findingsSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, finding := range report.Findings {
		row := []interface{}{
			finding.Statement,
			string(finding.TestType),
			finding.Result.Statistic,
			finding.Result.PValue,
			finding.Result.EffectSize,
			finding.Result.ConfidenceInterval[0],
			finding.Result.ConfidenceInterval[1],
			finding.Result.SampleSize,
			string(finding.Magnitude),
			finding.Significant,
			finding.Supported,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(findingsSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	const summarySheet = "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}
	rowNum := 1
	writeRow := func(values ...interface{}) error {
		cell := fmt.Sprintf("A%d", rowNum)
		rowNum++
		return f.SetSheetRow(summarySheet, cell, &values)
	}

	if err := writeRow("Report ID", report.ID.String()); err != nil {
		return nil, err
	}
	if err := writeRow("Generated", report.GeneratedAt.String()); err != nil {
		return nil, err
	}
	if err := writeRow("Methodology", report.Methodology); err != nil {
		return nil, err
	}
	sections := []struct {
		title string
		items []string
	}{
		{"Conclusions", report.Conclusions},
		{"Limitations", report.Limitations},
		{"Recommendations", report.Recommendations},
		{"References", report.References},
		{"Warnings", report.Warnings},
	}
	for _, section := range sections {
		if len(section.items) == 0 {
			continue
		}
		if err := writeRow(section.title); err != nil {
			return nil, err
		}
		for _, item := range section.items {
			if err := writeRow("", item); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ ports.ReportExporter = (*ReportExporter)(nil)
