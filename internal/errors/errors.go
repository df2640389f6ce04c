package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// ErrorType represents different categories of application errors
type ErrorType int

const (
	ValidationError ErrorType = iota
	DatabaseError
	NetworkError
	FileSystemError
	DownloadError
	ArchiveError
	ConfigIOError
	ConfigurationError
	AuthenticationError
	NotFoundError
	ConflictError
	ContainerError
	RCONError
	ForbiddenError
)

// AppError represents application-specific errors with context
type AppError struct {
	Type    ErrorType
	Op      string                 // Operation that failed
	Err     error                  // Original error
	Message string                 // User-friendly message
	Code    int                    // HTTP status code
	Context map[string]interface{} // Additional context
}

func (e *AppError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// String returns the error type as a string for logging
func (et ErrorType) String() string {
	switch et {
	case ValidationError:
		return "validation"
	case DatabaseError:
		return "database"
	case NetworkError:
		return "network"
	case FileSystemError:
		return "filesystem"
	case DownloadError:
		return "download"
	case ArchiveError:
		return "archive"
	case ConfigIOError:
		return "config_io"
	case ConfigurationError:
		return "configuration"
	case AuthenticationError:
		return "authentication"
	case NotFoundError:
		return "not_found"
	case ConflictError:
		return "conflict"
	case ContainerError:
		return "container"
	case RCONError:
		return "rcon"
	case ForbiddenError:
		return "forbidden"
	default:
		return "unknown"
	}
}

func newError(t ErrorType, op string, err error, message string, code int) *AppError {
	if err == nil {
		err = stderrors.New(message)
	}
	return &AppError{Type: t, Op: op, Err: err, Message: message, Code: code}
}

// NewValidationError creates a new validation error
func NewValidationError(op string, err error) *AppError {
	return newError(ValidationError, op, err, err.Error(), http.StatusBadRequest)
}

// NewDatabaseError creates a new database error
func NewDatabaseError(op string, err error) *AppError {
	return newError(DatabaseError, op, err, "Database operation failed", http.StatusInternalServerError)
}

// NewNetworkError creates a new network error
func NewNetworkError(op string, err error) *AppError {
	return newError(NetworkError, op, err, "Network operation failed", http.StatusServiceUnavailable)
}

// NewFileSystemError creates a new filesystem error
func NewFileSystemError(op string, err error) *AppError {
	return newError(FileSystemError, op, err, "File system operation failed", http.StatusInternalServerError)
}

// NewDownloadError wraps a failed fetch. The message is shown to panel users.
func NewDownloadError(op string, err error) *AppError {
	return newError(DownloadError, op, err, "Download failed", http.StatusBadGateway)
}

// NewArchiveError reports an archive that could not be read.
func NewArchiveError(op string, err error) *AppError {
	return newError(ArchiveError, op, err, "Archive is corrupt or unreadable", http.StatusUnprocessableEntity)
}

// NewConfigIOError reports a failure reading or writing persisted configuration
// (the selection document, server.properties).
func NewConfigIOError(op string, err error) *AppError {
	return newError(ConfigIOError, op, err, "Failed to update server configuration", http.StatusInternalServerError)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(op string, err error) *AppError {
	return newError(ConfigurationError, op, err, "Configuration error", http.StatusInternalServerError)
}

func NewAuthenticationError(op string, err error) *AppError {
	return newError(AuthenticationError, op, err, "Unauthorized", http.StatusUnauthorized)
}

// NewNotFoundError uses message as the response body.
func NewNotFoundError(op, message string) *AppError {
	return newError(NotFoundError, op, nil, message, http.StatusNotFound)
}

// NewConflictError uses message as the response body.
func NewConflictError(op, message string) *AppError {
	return newError(ConflictError, op, nil, message, http.StatusConflict)
}

func NewContainerError(op string, err error) *AppError {
	return newError(ContainerError, op, err, "Container operation failed", http.StatusBadGateway)
}

func NewRCONError(op string, err error) *AppError {
	return newError(RCONError, op, err, "RCON command failed", http.StatusBadGateway)
}

func NewForbiddenError(op, message string) *AppError {
	return newError(ForbiddenError, op, nil, message, http.StatusForbidden)
}

// WithContext adds context to an existing AppError
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithMessage replaces the user-facing message.
func (e *AppError) WithMessage(message string) *AppError {
	e.Message = message
	return e
}

// LogError logs an AppError with appropriate context
func LogError(logger *zap.Logger, err *AppError) {
	fields := []zap.Field{
		zap.String("type", err.Type.String()),
		zap.String("operation", err.Op),
		zap.Int("code", err.Code),
		zap.Error(err.Err),
	}
	for k, v := range err.Context {
		fields = append(fields, zap.Any(k, v))
	}

	if err.Code >= http.StatusInternalServerError {
		logger.Error(err.Message, fields...)
		return
	}
	logger.Warn(err.Message, fields...)
}

// HandleHTTPError sends a JSON error response and logs the error
func HandleHTTPError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var appErr *AppError
	if IsAppError(err, &appErr) {
		LogError(logger, appErr)
		writeJSON(w, appErr.Code, appErr.Message)
		return
	}

	logger.Error("Unhandled error", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, "Internal server error")
}

func writeJSON(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// IsAppError checks if an error is, or wraps, an AppError and extracts it
func IsAppError(err error, target **AppError) bool {
	return stderrors.As(err, target)
}

// IsType reports whether err carries an AppError of type t.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	return IsAppError(err, &appErr) && appErr.Type == t
}

// Message returns the user-facing text of err: the AppError message when
// there is one, otherwise the error string.
func Message(err error) string {
	var appErr *AppError
	if IsAppError(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// Wrap wraps an error with additional context
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if IsAppError(err, &appErr) {
		return &AppError{
			Type:    appErr.Type,
			Op:      op + " -> " + appErr.Op,
			Err:     appErr.Err,
			Message: appErr.Message,
			Code:    appErr.Code,
			Context: appErr.Context,
		}
	}

	return &AppError{
		Type:    ValidationError,
		Op:      op,
		Err:     err,
		Message: "Operation failed",
		Code:    http.StatusInternalServerError,
	}
}
