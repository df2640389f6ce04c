package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"mcpanel/internal/errors"
	"mcpanel/internal/validation"
	"mcpanel/library"
)

// writeJSON sends v with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody validates the request body against schema and decodes it
// into v.
func decodeBody(r *http.Request, schema string, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.NewValidationError("read_body", stderrors.New("invalid request body"))
	}
	if err := validation.ValidateJSON(schema, body); err != nil {
		return errors.NewValidationError("validate_body", err).WithMessage(validationMessage(err))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.NewValidationError("decode_body", stderrors.New("invalid request body"))
	}
	return nil
}

func validationMessage(err error) string {
	var vErr *validation.ValidationError
	if stderrors.As(err, &vErr) {
		return vErr.Message
	}
	return err.Error()
}

// libraryError maps library sentinel errors to HTTP errors.
func libraryError(op string, err error) *errors.AppError {
	var vErr *validation.ValidationError
	switch {
	case stderrors.As(err, &vErr):
		return errors.NewValidationError(op, err).WithMessage(vErr.Message)
	case stderrors.Is(err, library.ErrNotFound):
		return errors.NewNotFoundError(op, "File not found")
	case stderrors.Is(err, library.ErrExists):
		return errors.NewConflictError(op, "A file with this name already exists")
	case stderrors.Is(err, library.ErrInvalidType):
		return errors.NewValidationError(op, err).WithMessage("Invalid file type")
	case stderrors.Is(err, library.ErrTooLarge):
		return errors.NewValidationError(op, err).WithMessage("File too large")
	default:
		return errors.NewFileSystemError(op, err)
	}
}

// queryInt reads a non-negative integer parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// SetNoCacheHeaders sets HTTP headers to prevent caching.
func SetNoCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}
