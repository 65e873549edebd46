package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/hyperjump/buildcost/internal/analysis"
	"github.com/hyperjump/buildcost/internal/convert"
	"github.com/hyperjump/buildcost/internal/models"
	"github.com/hyperjump/buildcost/internal/project"
	"github.com/hyperjump/buildcost/internal/storage"
)

// TimezoneHeader lets clients pass their IANA timezone for country resolution.
const TimezoneHeader = "X-Timezone"

func (s *Server) owner(r *http.Request) string {
	id, _ := OwnerFromContext(r.Context())
	return id
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &project.InputError{Fields: map[string]string{"body": "invalid JSON"}}
	}
	return nil
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &project.InputError{Fields: map[string]string{name: "numeric"}}
	}
	return n, nil
}

// localeHint builds a viewer hint from ?country=, ?locale= / Accept-Language and ?timezone= / X-Timezone.
func localeHint(r *http.Request) project.LocaleHint {
	q := r.URL.Query()
	h := project.LocaleHint{
		Country:  q.Get("country"),
		Locale:   q.Get("locale"),
		Timezone: q.Get("timezone"),
	}
	if h.Locale == "" {
		if tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil && len(tags) > 0 {
			h.Locale = tags[0].String()
		}
	}
	if h.Timezone == "" {
		h.Timezone = r.Header.Get(TimezoneHeader)
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"service":        s.svc.Health(),
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.BlobDir,
		s.config.Storage.BleveIndexPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	reg := s.svc.Registry()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"base_currency": reg.Rates().Base(),
		"countries":     reg.Countries(),
	})
}

func (s *Server) handleResolveCountry(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h := project.LocaleHint{Country: q.Get("code"), Locale: q.Get("locale"), Timezone: q.Get("timezone")}
	if h.Country == "" && h.Locale == "" && h.Timezone == "" {
		h = localeHint(r)
	}
	s.respondJSON(w, http.StatusOK, s.svc.ResolveCountry(h))
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var input models.ProjectInput
	if err := decodeJSON(r, &input); err != nil {
		s.respondErr(w, r, err)
		return
	}
	p, err := s.svc.Create(r.Context(), s.owner(r), input)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	res, err := s.svc.List(r.Context(), s.owner(r), offset, limit)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleSearchProjects(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.respondErr(w, r, &project.InputError{Fields: map[string]string{"q": "required"}})
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	fuzzy, _ := strconv.ParseBool(r.URL.Query().Get("fuzzy"))
	s.logger.Debug("search request", zap.String("query", q), zap.Int("limit", limit), zap.Bool("fuzzy", fuzzy))
	hits, err := s.svc.Search(r.Context(), s.owner(r), q, limit, fuzzy)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"query": q, "results": hits, "total": len(hits)})
}

type projectResponse struct {
	*models.Project
	Localized *convert.ProjectView `json:"localized,omitempty"`
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	p, err := s.svc.Get(ctx, s.owner(r), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	resp := projectResponse{Project: p}
	h := localeHint(r)
	if h != (project.LocaleHint{}) {
		view, err := s.svc.Localized(ctx, s.owner(r), id, h)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		resp.Localized = view
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete project request", zap.String("id", id))
	if err := s.svc.Delete(r.Context(), s.owner(r), id); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleUploadFiles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.config.Server.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadSize)
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, codeValidation,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.respondErr(w, r, &project.InputError{Fields: map[string]string{"files": "multipart"}})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	uploads := make([]project.Upload, 0, len(headers))
	// One byte past the limit is enough for validation to report the file as too large.
	limit := s.svc.MaxFileSize() + 1
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.respondErr(w, r, fmt.Errorf("open %s: %w", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, limit))
		_ = f.Close()
		if err != nil {
			s.respondErr(w, r, fmt.Errorf("read %s: %w", fh.Filename, err))
			return
		}
		uploads = append(uploads, project.Upload{FileName: fh.Filename, Content: data})
	}

	records, err := s.svc.Upload(r.Context(), s.owner(r), id, uploads)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{"files": records})
}

func (s *Server) handleProcessProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.svc.Process(r.Context(), s.owner(r), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleResetProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.svc.Reset(r.Context(), s.owner(r), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

type chatRequest struct {
	Message  string             `json:"message,omitempty"`
	Messages []analysis.Message `json:"messages,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	history := req.Messages
	if req.Message != "" {
		history = append(history, analysis.Message{Role: analysis.RoleUser, Content: req.Message})
	}
	reply, err := s.svc.Chat(r.Context(), s.owner(r), chi.URLParam(r, "id"), history)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"role": analysis.RoleAssistant, "reply": reply})
}
