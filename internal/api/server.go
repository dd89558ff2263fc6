package api

import (
	"encoding/json"
	"net/http"
	"time"

	"privalytics/internal/logging"
	"privalytics/internal/platform"
	"privalytics/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes the platform facade over HTTP. Identity arrives on the
// X-User-ID and X-User-Role headers; authentication itself happens upstream.
type Server struct {
	platform *platform.Platform
	exporter ports.ReportExporter
	log      *logging.Logger
}

// NewServer creates the HTTP surface over the facade.
func NewServer(p *platform.Platform, exporter ports.ReportExporter, log *logging.Logger) *Server {
	return &Server{platform: p, exporter: exporter, log: log}
}

// Router builds the chi router with all platform routes mounted under
// /api/v1.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/data", s.handleSubmitData)
		r.Post("/queries", s.handleExecuteQuery)
		r.Get("/approvals", s.handlePendingApprovals)
		r.Post("/approvals/{approvalID}", s.handleDecideApproval)
		r.Post("/patterns/discover", s.handleDiscoverPatterns)
		r.Post("/evidence", s.handleGenerateEvidence)
		r.Post("/consent", s.handleManageConsent)
		r.Get("/consent/{subjectID}/audit", s.handleAuditTrail)
		r.Get("/compliance/report", s.handleComplianceReport)
	})
	return r
}

// identity pulls the caller identity headers.
func identity(r *http.Request) (userID, userRole string) {
	return r.Header.Get("X-User-ID"), r.Header.Get("X-User-Role")
}

// writeEnvelope serializes a facade envelope with a status code derived from
// its error code.
func (s *Server) writeEnvelope(w http.ResponseWriter, env *platform.Envelope) {
	status := http.StatusOK
	if !env.Success {
		status = statusFor(env.Error.Code)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.log.Error("response encode failed: %v", err)
	}
}

func statusFor(code string) int {
	switch code {
	case "VALIDATION_ERROR", "CONFIG_INVALID":
		return http.StatusBadRequest
	case "UNAUTHORIZED":
		return http.StatusForbidden
	case "CONSENT_DENIED":
		return http.StatusForbidden
	case "NOT_FOUND":
		return http.StatusNotFound
	case "APPROVAL_PENDING":
		return http.StatusAccepted
	case "QUERY_TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   map[string]string{"code": "VALIDATION_ERROR", "message": "invalid request body"},
		})
		return false
	}
	return true
}
