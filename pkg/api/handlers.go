package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dlrs-ng/land-registry/pkg/parcel"
	"github.com/dlrs-ng/land-registry/pkg/registry"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

// HistoryResponse is a page of a parcel's audit trail.
type HistoryResponse struct {
	Events        []parcel.Event `json:"events"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type handlers struct {
	svc          *registry.Service
	logger       *slog.Logger
	maxBodyBytes int64
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) submit(w http.ResponseWriter, r *http.Request) {
	var sub parcel.Submission
	if !h.decode(w, r, &sub) {
		return
	}
	rec, err := h.svc.Submit(r.Context(), sub)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := parcel.Filter{SurveyorLicense: strings.TrimSpace(q.Get("surveyorLicense"))}
	if raw := q.Get("status"); raw != "" {
		status, err := parcel.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "status must be PENDING or VERIFIED")
			return
		}
		filter.Status = status
	}

	records, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parcelID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) edit(w http.ResponseWriter, r *http.Request) {
	id, ok := parcelID(w, r)
	if !ok {
		return
	}
	var e parcel.Edit
	if !h.decode(w, r, &e) {
		return
	}
	rec, err := h.svc.Edit(r.Context(), id, e)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := parcelID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Remove(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *handlers) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := parcelID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Approve(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) integrity(w http.ResponseWriter, r *http.Request) {
	id, ok := parcelID(w, r)
	if !ok {
		return
	}
	report, err := h.svc.Integrity(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	id, ok := parcelID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	pageSize := 0
	if raw := q.Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "pageSize must be a non-negative integer")
			return
		}
		pageSize = n
	}
	pageToken := q.Get("pageToken")
	if pageToken != "" {
		if _, err := parcel.ParseHistoryCursor(pageToken); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid pageToken")
			return
		}
	}

	events, next, err := h.svc.History(r.Context(), id, pageSize, pageToken)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if events == nil {
		events = []parcel.Event{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Events: events, NextPageToken: next})
}

func (h *handlers) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fingerprint := q.Get("fingerprint")
	if fingerprint == "" {
		fingerprint = q.Get("hash")
	}

	view, err := h.svc.Verify(r.Context(), q.Get("landId"), fingerprint)
	if errors.Is(err, parcel.ErrNotFound) {
		writeError(w, http.StatusNotFound, CodeNotFound, "No land record found for the supplied details")
		return
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// decode reads a JSON request body into v. It writes a 400 and returns false
// on malformed input.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// parcelID parses the {id} path parameter. Ids that cannot name a parcel
// are answered with 404.
func parcelID(w http.ResponseWriter, r *http.Request) (parcel.ID, bool) {
	id, err := parcel.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "Parcel not found")
		return 0, false
	}
	return id, true
}
