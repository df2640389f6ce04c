package validation

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	playerNameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)
	slugRegex       = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}$`)
	propertyKeyRe   = regexp.MustCompile(`^[a-z0-9][a-z0-9.\-]*$`)
)

// MaxCommandLength is the longest console command accepted from the panel.
const MaxCommandLength = 1000

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ValidateFilePath validates file paths and prevents path traversal attacks
func ValidateFilePath(basePath, userPath string) (string, error) {
	if userPath == "" {
		return "", NewValidationError("path", "file path is required")
	}

	cleanPath := filepath.Clean(userPath)

	for _, part := range strings.Split(filepath.ToSlash(cleanPath), "/") {
		if part == ".." {
			return "", NewValidationError("path", "path traversal detected")
		}
	}

	if filepath.IsAbs(cleanPath) {
		return "", NewValidationError("path", "absolute paths not allowed")
	}

	base := filepath.Clean(basePath)
	fullPath := filepath.Join(base, cleanPath)

	// Ensure the result is still within the base path
	if fullPath != base && !strings.HasPrefix(fullPath, base+string(filepath.Separator)) {
		return "", NewValidationError("path", "path outside allowed directory")
	}

	return fullPath, nil
}

// ValidateFilename validates filename for safety
func ValidateFilename(filename string) error {
	if filename == "" {
		return NewValidationError("filename", "filename is required")
	}

	dangerous := []string{"/", "\\", "..", ":", "*", "?", "\"", "<", ">", "|", "\x00"}
	for _, char := range dangerous {
		if strings.Contains(filename, char) {
			return NewValidationError("filename", "filename contains invalid characters")
		}
	}

	if strings.HasPrefix(filename, ".") {
		return NewValidationError("filename", "hidden files not allowed")
	}

	if len(filename) > 255 {
		return NewValidationError("filename", "filename too long (max 255 characters)")
	}

	return nil
}

// ValidatePort validates port number
func ValidatePort(port string) error {
	if port == "" {
		return NewValidationError("port", "port is required")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return NewValidationError("port", "invalid port number")
	}

	if portNum <= 0 || portNum > 65535 {
		return NewValidationError("port", "port number out of range (1-65535)")
	}

	return nil
}

// ValidatePlayerName checks a Minecraft Java username: 3-16 letters, digits
// or underscores.
func ValidatePlayerName(name string) error {
	if name == "" {
		return NewValidationError("player", "player name is required")
	}
	if !playerNameRegex.MatchString(name) {
		return NewValidationError("player", "invalid player name (3-16 characters: letters, digits, underscore)")
	}
	return nil
}

// ValidateCommand checks a console command before it is relayed over RCON.
func ValidateCommand(command string) error {
	if err := ValidateRequired("command", command); err != nil {
		return err
	}
	if err := ValidateMaxLength("command", command, MaxCommandLength); err != nil {
		return err
	}
	if strings.ContainsAny(command, "\r\n\x00") {
		return NewValidationError("command", "command must be a single line")
	}
	return nil
}

// ValidateSlug checks Modrinth project slugs and ids used in URLs.
func ValidateSlug(slug string) error {
	if !slugRegex.MatchString(slug) {
		return NewValidationError("slug", "invalid project slug")
	}
	return nil
}

// ValidatePropertyKey checks a server.properties key submitted from the
// settings page.
func ValidatePropertyKey(key string) error {
	if !propertyKeyRe.MatchString(key) {
		return NewValidationError("key", "invalid property key "+strconv.Quote(key))
	}
	return nil
}

// ValidatePropertyValue rejects values that would break the line-based format.
func ValidatePropertyValue(key, value string) error {
	if strings.ContainsAny(value, "\r\n") {
		return NewValidationError(key, "value must be a single line")
	}
	return nil
}

// ValidateRequired checks if a string field is not empty
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError(field, field+" is required")
	}
	return nil
}

// ValidateMaxLength validates maximum string length
func ValidateMaxLength(field, value string, maxLen int) error {
	if len(value) > maxLen {
		return NewValidationError(field, field+" too long")
	}
	return nil
}

// ValidateMinLength validates minimum string length
func ValidateMinLength(field, value string, minLen int) error {
	if len(value) < minLen {
		return NewValidationError(field, field+" too short")
	}
	return nil
}

// ValidateFileExtension validates allowed file extensions
func ValidateFileExtension(filename string, allowedExts []string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range allowedExts {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	return NewValidationError("filename", "file extension not allowed")
}
