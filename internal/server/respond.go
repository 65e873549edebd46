package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/buildcost/internal/pipeline"
	"github.com/hyperjump/buildcost/internal/project"
	"github.com/hyperjump/buildcost/internal/storage"
)

// Stable error codes returned in the "code" field.
const (
	codeValidation   = "validation_error"
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeInternal     = "internal_error"
	codeUnauthorized = "unauthorized"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
	Files  []fileError       `json:"files,omitempty"`
}

type fileError struct {
	FileName string `json:"file_name"`
	Error    string `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondErr maps service and storage errors to HTTP responses.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var (
		inputErr *project.InputError
		fileErr  *pipeline.ValidationError
	)
	switch {
	case errors.As(err, &inputErr):
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: codeValidation, Fields: inputErr.Fields})
	case errors.As(err, &fileErr):
		s.respondJSON(w, http.StatusBadRequest, errorResponse{
			Error: "one or more files were rejected",
			Code:  codeValidation,
			Files: fileErrors(err),
		})
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, codeNotFound, "project not found")
	case errors.Is(err, storage.ErrNotDraft):
		s.respondError(w, http.StatusConflict, codeConflict, "project is not a draft")
	case errors.Is(err, storage.ErrProcessing):
		s.respondError(w, http.StatusConflict, codeConflict, "project is being processed")
	case errors.Is(err, storage.ErrNotProcessing):
		s.respondError(w, http.StatusConflict, codeConflict, "project is not being processed")
	case errors.Is(err, context.DeadlineExceeded):
		s.respondError(w, http.StatusGatewayTimeout, codeInternal, "request timed out")
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		s.respondError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

// fileErrors flattens joined validation errors into per-file entries.
func fileErrors(err error) []fileError {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}
	out := make([]fileError, 0, len(errs))
	for _, e := range errs {
		var ve *pipeline.ValidationError
		if errors.As(e, &ve) {
			out = append(out, fileError{FileName: ve.FileName, Error: ve.Error()})
		}
	}
	return out
}
