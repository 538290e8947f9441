package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"accessgate.org/internal/audit"
	"accessgate.org/internal/authz"
	"accessgate.org/internal/report"
)

type resourcePayload struct {
	Type           string `json:"type"`
	ID             string `json:"id"`
	OrgID          string `json:"org_id"`
	SecondaryOrgID string `json:"secondary_org_id,omitempty"`
	OwnerID        string `json:"owner_id,omitempty"`
	Public         bool   `json:"public,omitempty"`
}

func (p resourcePayload) descriptor() authz.ResourceDescriptor {
	t := authz.ResourceType(p.Type)
	switch {
	case p.Public:
		return authz.PublicResource(t, p.ID)
	case p.SecondaryOrgID != "":
		return authz.SharedResource(t, p.OrgID, p.SecondaryOrgID, p.OwnerID, p.ID)
	case p.OwnerID != "":
		return authz.OwnedResource(t, p.OrgID, p.OwnerID, p.ID)
	default:
		return authz.OrgResource(t, p.OrgID, p.ID)
	}
}

type authorizeRequest struct {
	SubjectID string          `json:"subject_id,omitempty"`
	OrgID     string          `json:"org_id"`
	Resource  resourcePayload `json:"resource"`
	Operation string          `json:"operation"`
}

// Authorize is the primary entry point for the data-access layer.
func (a *API) Authorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	subject := a.actingSubject(r, req.SubjectID)
	if subject == "" {
		respondError(w, http.StatusUnauthorized, "no acting principal")
		return
	}

	d, err := a.engine.Authorize(r.Context(), subject, req.OrgID, req.Resource.descriptor(), authz.Operation(req.Operation))
	if err != nil {
		switch {
		case errors.Is(err, authz.ErrInvalidInput):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, authz.ErrStorageUnavailable):
			// Deny-by-default already happened; surface the fault distinctly.
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"allow": false,
				"rule":  d.Rule,
				"error": "storage unavailable",
			})
		case errors.Is(err, authz.ErrConfigurationConflict):
			respondError(w, http.StatusInternalServerError, "policy configuration conflict")
		default:
			respondError(w, http.StatusInternalServerError, "authorization error")
		}
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type recordEventRequest struct {
	Channel      string            `json:"channel"`
	OrgID        string            `json:"org_id"`
	Action       string            `json:"action"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	ActorID      string            `json:"actor_id,omitempty"`
	PrevValue    json.RawMessage   `json:"prev_value,omitempty"`
	NewValue     json.RawMessage   `json:"new_value,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Events dispatches on method: POST records an explicit event, GET queries.
func (a *API) Events(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.recordEvent(w, r)
	case http.MethodGet:
		a.queryEvents(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *API) recordEvent(w http.ResponseWriter, r *http.Request) {
	var req recordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	actor := a.actingSubject(r, req.ActorID)
	if actor == "" {
		respondError(w, http.StatusUnauthorized, "no acting principal")
		return
	}

	meta := req.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		meta["request_id"] = rid
	}
	if ip := clientIP(r); ip != "" {
		meta["caller_ip"] = ip
	}
	if ua := r.UserAgent(); ua != "" {
		meta["user_agent"] = ua
	}

	id, err := a.engine.RecordEvent(r.Context(), audit.Event{
		Channel:      audit.Channel(req.Channel),
		OrgID:        req.OrgID,
		ActorID:      actor,
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		PrevValue:    req.PrevValue,
		NewValue:     req.NewValue,
		Metadata:     meta,
	})
	if err != nil {
		switch {
		case errors.Is(err, audit.ErrInvalidEvent):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, audit.ErrWriteFailed):
			respondError(w, http.StatusServiceUnavailable, "audit write failed")
		default:
			respondError(w, http.StatusInternalServerError, "audit write error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"event_id": id})
}

func (a *API) queryEvents(w http.ResponseWriter, r *http.Request) {
	subject := a.actingSubject(r, r.URL.Query().Get("subject_id"))
	if subject == "" {
		respondError(w, http.StatusUnauthorized, "no acting principal")
		return
	}

	q, err := queryFromURL(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := a.reporter.Events(r.Context(), subject, q)
	if err != nil {
		respondReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Reports returns a time-bounded summary for one organization.
func (a *API) Reports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	subject := a.actingSubject(r, r.URL.Query().Get("subject_id"))
	if subject == "" {
		respondError(w, http.StatusUnauthorized, "no acting principal")
		return
	}
	from, to, err := timeRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := a.reporter.Report(r.Context(), subject, r.URL.Query().Get("org_id"), from, to)
	if err != nil {
		respondReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type exportRequest struct {
	SubjectID string    `json:"subject_id,omitempty"`
	OrgID     string    `json:"org_id"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Reason    string    `json:"reason"`
}

// Exports produces a self-auditing export of the domain channel.
func (a *API) Exports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	subject := a.actingSubject(r, req.SubjectID)
	if subject == "" {
		respondError(w, http.StatusUnauthorized, "no acting principal")
		return
	}

	manifest, events, err := a.reporter.Export(r.Context(), subject, req.OrgID, req.Reason, req.From, req.To)
	if err != nil {
		if errors.Is(err, report.ErrReasonRequired) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"manifest": manifest,
		"events":   events,
	})
}

// actingSubject prefers the authenticated principal; the explicit field is
// only honored when token auth is disabled (development mode).
func (a *API) actingSubject(r *http.Request, fallback string) string {
	if s, ok := authz.SubjectFromContext(r.Context()); ok {
		return s
	}
	if a.authn == nil || !a.authn.Enabled() {
		return strings.TrimSpace(fallback)
	}
	return ""
}

func respondReportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, report.ErrForbidden):
		respondError(w, http.StatusForbidden, "admin or owner role required")
	case errors.Is(err, report.ErrInvalidRange), errors.Is(err, audit.ErrInvalidEvent):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrStorageUnavailable):
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "query failed")
	}
}

func queryFromURL(r *http.Request) (audit.Query, error) {
	from, to, err := timeRange(r)
	if err != nil {
		return audit.Query{}, err
	}
	vals := r.URL.Query()
	q := audit.Query{
		Channel:      audit.Channel(vals.Get("channel")),
		OrgID:        vals.Get("org_id"),
		From:         from,
		To:           to,
		ActorID:      vals.Get("actor_id"),
		Action:       vals.Get("action"),
		ResourceType: vals.Get("resource_type"),
		AfterID:      vals.Get("after_id"),
	}
	if raw := vals.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return audit.Query{}, errors.New("limit must be a positive integer")
		}
		q.Limit = limit
	}
	return q, nil
}

func timeRange(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
		to = t
	}
	return from, to, nil
}
