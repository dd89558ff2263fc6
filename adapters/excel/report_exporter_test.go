package excel

import (
	"bytes"
	"context"
	"testing"

	"privalytics/domain/core"
	"privalytics/domain/research"

	"github.com/xuri/excelize/v2"
)

func TestExportRoundTrip(t *testing.T) {
	report := &research.EvidenceReport{
		ID:          "report-1",
		Methodology: "tested against anonymized records",
		Findings: []research.Finding{{
			HypothesisID: "h1",
			Statement:    "anxiety tracks mood",
			TestType:     research.TestCorrelation,
			Result: research.TestResult{
				Statistic: 4.2, PValue: 0.0003, EffectSize: 0.61,
				ConfidenceInterval: [2]float64{0.4, 0.76}, SampleSize: 40,
			},
			Magnitude:   research.EffectLarge,
			Significant: true,
			Supported:   true,
		}},
		Conclusions: []string{"1 of 1 hypotheses significant"},
		References:  []string{"Cohen, J. (1988)."},
		GeneratedAt: core.Now(),
	}

	raw, err := NewReportExporter().Export(context.Background(), report)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("empty workbook")
	}

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	statement, err := f.GetCellValue("Findings", "A2")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if statement != "anxiety tracks mood" {
		t.Errorf("Findings!A2 = %q, want the hypothesis statement", statement)
	}

	id, err := f.GetCellValue("Summary", "B1")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if id != "report-1" {
		t.Errorf("Summary!B1 = %q, want report-1", id)
	}
}

func TestExportHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewReportExporter().Export(ctx, &research.EvidenceReport{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
