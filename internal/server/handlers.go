package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"github.com/jgarciait/osl-app-ct-sub002/internal/api"
	"github.com/jgarciait/osl-app-ct-sub002/internal/permission"
	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
	"github.com/jgarciait/osl-app-ct-sub002/internal/session"
)

// maxBodyBytes bounds write request bodies.
const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, api.CodeInternal, err.Error(), nil)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"store": "ok"})
}

var loginPage = template.Must(template.New("login").Parse(`<!doctype html>
<html lang="{{.Lang}}">
<head><meta charset="utf-8"><title>legisync</title></head>
<body><p>{{.Message}}</p></body>
</html>
`))

// handleLogin is the redirect target for browsers without a session.
// Tokens are issued out of band; the page only tells the user to sign in.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	msgs := s.messages.For(r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = loginPage.Execute(w, struct{ Lang, Message string }{msgs.Tag().String(), msgs.SessionRequired()})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	writeOK(w, http.StatusOK, sess)
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	set, _ := permission.FromContext(r.Context())
	writeOK(w, http.StatusOK, set)
}

// handleSchemas lists the tables the session may view.
func (s *Server) handleSchemas(w http.ResponseWriter, r *http.Request) {
	out := []record.Schema{}
	for _, name := range s.registry.Names() {
		if !permission.Allowed(r.Context(), permission.Query{Resource: name, Action: permission.ActionView}) {
			continue
		}
		sch, _ := s.registry.Lookup(name)
		out = append(out, sch)
	}
	writeOK(w, http.StatusOK, out)
}

// table resolves the {table} path value and checks action on it. It writes
// the error response and returns false when the request cannot proceed.
func (s *Server) table(w http.ResponseWriter, r *http.Request, action string) (record.Schema, bool) {
	name := r.PathValue("table")
	if !permission.Allowed(r.Context(), permission.Query{Resource: name, Action: action}) {
		s.forbidden(w, r)
		return record.Schema{}, false
	}
	sch, ok := s.registry.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, api.CodeNotFound, s.messages.For(r).NotFound(name), nil)
		return record.Schema{}, false
	}
	return sch, true
}

func (s *Server) rowID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, api.CodeInvalidRequest,
			s.messages.For(r).Invalid(fmt.Sprintf("id %q", r.PathValue("id"))), nil)
		return 0, false
	}
	return id, true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	sch, ok := s.table(w, r, permission.ActionView)
	if !ok {
		return
	}

	var filter record.Filter
	if raw := r.URL.Query().Get("filter"); raw != "" {
		fields, err := record.DecodeFields([]byte(raw))
		if err != nil {
			writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, s.messages.For(r).Invalid(err.Error()), nil)
			return
		}
		filter = record.Filter(fields)
	}
	order := api.DecodeOrder(r.URL.Query().Get("order"))

	recs, err := s.store.Select(r.Context(), sch.Name, filter, order)
	if err != nil {
		s.writeStoreError(w, r, sch.Name, sch.Title, "select", err)
		return
	}
	writeOK(w, http.StatusOK, api.List{Table: sch.Name, Records: recs})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sch, ok := s.table(w, r, permission.ActionView)
	if !ok {
		return
	}
	id, ok := s.rowID(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Get(r.Context(), sch.Name, id)
	if err != nil {
		s.writeStoreError(w, r, sch.Name, sch.Title, "select", err)
		return
	}
	writeOK(w, http.StatusOK, api.Mutation{Table: sch.Name, Record: &rec, ID: rec.ID})
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	sch, ok := s.table(w, r, permission.ActionCreate)
	if !ok {
		return
	}
	fields, ok := s.decodeFields(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Insert(r.Context(), actor(r), sch.Name, fields)
	if err != nil {
		s.writeStoreError(w, r, sch.Name, sch.Title, "insert", err)
		return
	}
	writeOK(w, http.StatusCreated, api.Mutation{Table: sch.Name, Record: &rec, ID: rec.ID})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	sch, ok := s.table(w, r, permission.ActionUpdate)
	if !ok {
		return
	}
	id, ok := s.rowID(w, r)
	if !ok {
		return
	}
	patch, ok := s.decodeFields(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Update(r.Context(), actor(r), sch.Name, id, patch)
	if err != nil {
		s.writeStoreError(w, r, sch.Name, sch.Title, "update", err)
		return
	}
	writeOK(w, http.StatusOK, api.Mutation{Table: sch.Name, Record: &rec, ID: rec.ID})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sch, ok := s.table(w, r, permission.ActionDelete)
	if !ok {
		return
	}
	// The cascade deletes relation rows too.
	for _, rel := range sch.Relations {
		if !permission.Allowed(r.Context(), permission.Query{Resource: rel.Table, Action: permission.ActionDelete}) {
			s.forbidden(w, r)
			return
		}
	}
	id, ok := s.rowID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteCascade(r.Context(), actor(r), sch.Name, id); err != nil {
		s.writeStoreError(w, r, sch.Name, sch.Title, "delete", err)
		return
	}
	writeOK(w, http.StatusOK, api.Mutation{Table: sch.Name, ID: id})
}

func (s *Server) decodeFields(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err == nil && len(bytes.TrimSpace(data)) == 0 {
		err = fmt.Errorf("empty body")
	}
	var fields map[string]any
	if err == nil {
		if !json.Valid(data) {
			err = fmt.Errorf("body is not JSON")
		} else {
			fields, err = record.DecodeFields(data)
		}
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, s.messages.For(r).Invalid(err.Error()), nil)
		return nil, false
	}
	return fields, true
}

func actor(r *http.Request) string {
	sess, _ := session.FromContext(r.Context())
	return sess.UserID
}
