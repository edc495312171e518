package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"dealdesk/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
			"analysis": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		if err := s.service.PingAnalysis(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["analysis"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/connections" {
		var body CreateConnectionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
			return
		}
		connection, err := s.service.CreateConnection(r.Context(), body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"connectionId": connection.ID,
			"status":       connection.Status,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/deals" {
		var body CreateDealInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
			return
		}
		item, err := s.service.CreateDeal(r.Context(), body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"dealId": item.ID,
			"deal":   dealPayload(item),
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/deals" {
		userID := strings.TrimSpace(r.URL.Query().Get("userId"))
		if userID == "" {
			writeError(w, http.StatusUnprocessableEntity, CodeValidation, "userId query parameter is required", nil)
			return
		}
		items, err := s.service.GetDealsForUser(r.Context(), userID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		payload := make([]map[string]any, 0, len(items))
		for _, item := range items {
			payload = append(payload, dealPayload(item))
		}
		writeJSON(w, http.StatusOK, map[string]any{"deals": payload})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "deals" {
		dealID := parts[2]

		if len(parts) == 3 && r.Method == http.MethodGet {
			item, err := s.service.GetDealByID(r.Context(), dealID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, dealPayload(item))
			return
		}

		if len(parts) == 4 && r.Method == http.MethodGet && parts[3] == "permissions" {
			userID := strings.TrimSpace(r.URL.Query().Get("userId"))
			if userID == "" {
				writeError(w, http.StatusUnprocessableEntity, CodeValidation, "userId query parameter is required", nil)
				return
			}
			item, err := s.service.GetDealByID(r.Context(), dealID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"canAct": CanUserActOnDeal(item, userID),
				"role":   nilIfEmpty(string(RoleOfUser(item, userID))),
			})
			return
		}

		if len(parts) == 4 && r.Method == http.MethodPost {
			switch parts[3] {
			case "counter":
				var body CounterDealInput
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
					return
				}
				item, err := s.service.CounterDeal(r.Context(), dealID, body)
				if err != nil {
					status, code, message, details := mapError(err)
					writeError(w, status, code, message, details)
					return
				}
				writeJSON(w, http.StatusOK, dealPayload(item))
				return
			case "accept":
				var body ActorInput
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
					return
				}
				item, err := s.service.AcceptDeal(r.Context(), dealID, body)
				if err != nil {
					status, code, message, details := mapError(err)
					writeError(w, status, code, message, details)
					return
				}
				writeJSON(w, http.StatusOK, dealPayload(item))
				return
			case "decline":
				var body ActorInput
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
					return
				}
				item, err := s.service.DeclineDeal(r.Context(), dealID, body)
				if err != nil {
					status, code, message, details := mapError(err)
					writeError(w, status, code, message, details)
					return
				}
				writeJSON(w, http.StatusOK, dealPayload(item))
				return
			}
		}
	}

	writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	return http.StatusInternalServerError, CodeServerError, "Server error", nil
}

func dealPayload(item store.Deal) map[string]any {
	versions := make([]map[string]any, 0, len(item.VersionHistory))
	for _, version := range item.VersionHistory {
		versions = append(versions, map[string]any{
			"version":      version.Version,
			"terms":        version.Terms,
			"proposedBy":   version.ProposedBy,
			"proposedById": version.ProposedByID,
			"proposedAt":   version.ProposedAt.Format(time.RFC3339),
			"validUntil":   version.ValidUntil.Format(time.RFC3339),
			"rationale":    nilIfEmpty(version.Rationale),
		})
	}
	activity := make([]map[string]any, 0, len(item.ActivityLog))
	for _, entry := range item.ActivityLog {
		row := map[string]any{
			"action":      entry.Action,
			"performedBy": entry.PerformedBy,
			"timestamp":   entry.Timestamp.Format(time.RFC3339),
		}
		if entry.Metadata != nil {
			row["metadata"] = entry.Metadata
		}
		activity = append(activity, row)
	}
	payload := map[string]any{
		"dealId":           item.ID,
		"projectId":        item.ProjectID,
		"investorId":       item.InvestorID,
		"founderId":        item.FounderID,
		"connectionId":     item.ConnectionID,
		"initiatedBy":      item.InitiatedBy,
		"status":           item.Status,
		"currentTerms":     item.CurrentTerms,
		"versionNumber":    item.VersionNumber,
		"validUntil":       item.ValidUntil.Format(time.RFC3339),
		"actionRequiredBy": nilIfEmpty(string(item.ActionRequiredBy)),
		"versionHistory":   versions,
		"activityLog":      activity,
		"createdAt":        item.CreatedAt.Format(time.RFC3339),
		"updatedAt":        item.UpdatedAt.Format(time.RFC3339),
	}
	if item.LockedAt != nil {
		payload["lockedAt"] = item.LockedAt.Format(time.RFC3339)
	} else {
		payload["lockedAt"] = nil
	}
	return payload
}

func nilIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
