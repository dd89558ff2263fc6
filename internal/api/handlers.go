package api

import (
	"net/http"
	"strconv"

	"privalytics/domain/core"
	"privalytics/domain/research"
	"privalytics/internal/evidence"
	"privalytics/internal/platform"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, s.platform.GetStatus(r.Context()))
}

type submitDataRequest struct {
	Records []research.ResearchRecord `json:"records"`
}

func (s *Server) handleSubmitData(w http.ResponseWriter, r *http.Request) {
	var request submitDataRequest
	if !s.decode(w, r, &request) {
		return
	}
	userID, userRole := identity(r)
	s.writeEnvelope(w, s.platform.SubmitResearchData(r.Context(), request.Records, userID, userRole))
}

func (s *Server) handleExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var request platform.QueryRequest
	if !s.decode(w, r, &request) {
		return
	}
	userID, userRole := identity(r)
	s.writeEnvelope(w, s.platform.ExecuteResearchQuery(r.Context(), request, userID, userRole))
}

func (s *Server) handlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	_, userRole := identity(r)
	s.writeEnvelope(w, s.platform.PendingApprovals(r.Context(), userRole))
}

func (s *Server) handleDecideApproval(w http.ResponseWriter, r *http.Request) {
	var decision platform.ApprovalDecision
	if !s.decode(w, r, &decision) {
		return
	}
	decision.ApprovalID = core.ApprovalID(chi.URLParam(r, "approvalID"))
	userID, userRole := identity(r)
	s.writeEnvelope(w, s.platform.DecideApproval(r.Context(), decision, userID, userRole))
}

func (s *Server) handleDiscoverPatterns(w http.ResponseWriter, r *http.Request) {
	var request research.DiscoveryRequest
	if !s.decode(w, r, &request) {
		return
	}
	userID, userRole := identity(r)
	s.writeEnvelope(w, s.platform.DiscoverPatterns(r.Context(), request, userID, userRole))
}

// handleGenerateEvidence generates a report and renders it in the requested
// format: json (default), markdown, html, or xlsx.
func (s *Server) handleGenerateEvidence(w http.ResponseWriter, r *http.Request) {
	var request research.EvidenceRequest
	if !s.decode(w, r, &request) {
		return
	}
	userID, userRole := identity(r)
	env := s.platform.GenerateEvidenceReport(r.Context(), request, userID, userRole)
	if !env.Success {
		s.writeEnvelope(w, env)
		return
	}

	report, ok := env.Data.(*research.EvidenceReport)
	if !ok {
		s.writeEnvelope(w, env)
		return
	}

	switch r.URL.Query().Get("format") {
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(evidence.RenderNarrative(report)))
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(evidence.RenderNarrativeHTML(report))
	case "xlsx":
		workbook, err := s.exporter.Export(r.Context(), report)
		if err != nil {
			s.log.Error("workbook export failed: %v", err)
			http.Error(w, "workbook export failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="evidence-report.xlsx"`)
		w.Write(workbook)
	default:
		s.writeEnvelope(w, env)
	}
}

func (s *Server) handleManageConsent(w http.ResponseWriter, r *http.Request) {
	var request platform.ConsentRequest
	if !s.decode(w, r, &request) {
		return
	}
	userID, _ := identity(r)
	s.writeEnvelope(w, s.platform.ManageConsent(r.Context(), request, userID))
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	subjectID := core.SubjectID(chi.URLParam(r, "subjectID"))
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	_, userRole := identity(r)
	s.writeEnvelope(w, s.platform.GetAuditTrail(r.Context(), subjectID, limit, userRole))
}

func (s *Server) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	_, userRole := identity(r)
	s.writeEnvelope(w, s.platform.GenerateComplianceReport(r.Context(), userRole))
}
