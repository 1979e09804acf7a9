package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/text/language"

	"github.com/jgarciait/osl-app-ct-sub002/internal/api"
	"github.com/jgarciait/osl-app-ct-sub002/internal/notify"
	"github.com/jgarciait/osl-app-ct-sub002/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, api.Response[any]{Status: api.StatusOK, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, api.Response[any]{
		Status: api.StatusError,
		Error:  &api.Error{Code: code, Message: message, Details: details},
	})
}

// messageSet picks the catalog matching the request's Accept-Language,
// falling back to the configured default.
type messageSet struct {
	fallback *notify.Messages
	byTag    map[language.Tag]*notify.Messages
	matcher  language.Matcher
	tags     []language.Tag
}

func newMessageSet(fallback *notify.Messages) *messageSet {
	if fallback == nil {
		fallback = notify.NewMessages(language.Spanish)
	}
	tags := []language.Tag{fallback.Tag(), language.Spanish, language.English}
	ms := &messageSet{
		fallback: fallback,
		byTag:    map[language.Tag]*notify.Messages{fallback.Tag(): fallback},
		matcher:  language.NewMatcher(tags),
		tags:     tags,
	}
	for _, tag := range tags[1:] {
		if _, ok := ms.byTag[tag]; !ok {
			ms.byTag[tag] = notify.NewMessages(tag)
		}
	}
	return ms
}

// For returns the messages for r.
func (ms *messageSet) For(r *http.Request) *notify.Messages {
	accept := r.Header.Get("Accept-Language")
	if accept == "" {
		return ms.fallback
	}
	_, idx := language.MatchStrings(ms.matcher, accept)
	if m, ok := ms.byTag[ms.tags[idx]]; ok {
		return m
	}
	return ms.fallback
}

// stepDetail is the JSON form of a failed cascade step.
type stepDetail struct {
	Table string `json:"table"`
	ID    int64  `json:"id,omitempty"`
	Error string `json:"error"`
}

// writeStoreError converts a store error into the API envelope with a
// localized message. op is "select", "insert", "update" or "delete".
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, table, title, op string, err error) {
	msgs := s.messages.For(r)

	// MutationError unwraps to its step errors, so it is matched first.
	var me *store.MutationError
	if errors.As(err, &me) {
		s.metrics.MutationFailed(table, op)
		s.logger.Warn("mutation partially failed", "table", table, "op", op, "error", err)
		details := make([]stepDetail, 0, len(me.Steps))
		failed := 0
		for _, step := range me.Steps {
			details = append(details, stepDetail{Table: step.Table, ID: step.ID, Error: step.Err.Error()})
			if !errors.Is(step.Err, store.ErrSkipped) {
				failed++
			}
		}
		writeError(w, http.StatusConflict, api.CodeMutationFailed, msgs.DeletePartial(title, failed), details)
		return
	}

	switch {
	case errors.Is(err, store.ErrUnknownTable), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, api.CodeNotFound, msgs.NotFound(title), nil)
		return
	case errors.Is(err, store.ErrReadOnly):
		writeError(w, http.StatusConflict, api.CodeReadOnly, msgs.ReadOnly(title), nil)
		return
	case errors.Is(err, store.ErrInvalidFields):
		writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, msgs.Invalid(err.Error()), nil)
		return
	}

	s.logger.Error("store operation failed", "table", table, "op", op, "error", err, "request_id", RequestID(r.Context()))
	var message string
	switch op {
	case "insert":
		s.metrics.MutationFailed(table, op)
		message = msgs.InsertFailed(title)
	case "update":
		s.metrics.MutationFailed(table, op)
		message = msgs.UpdateFailed(title)
	case "delete":
		s.metrics.MutationFailed(table, op)
		message = msgs.DeleteFailed(title)
	default:
		writeError(w, http.StatusInternalServerError, api.CodeFetchFailed, msgs.FetchFailed(title).Message, nil)
		return
	}
	writeError(w, http.StatusInternalServerError, api.CodeMutationFailed, message, nil)
}
