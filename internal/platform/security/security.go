package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const MaxInputLength = 10000

var (
	ErrFileTooLarge       = errors.New("file too large")
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
)

var DefaultAllowedExtensions = []string{".jpg", ".jpeg", ".png", ".pdf", ".txt", ".csv"}

var angleBrackets = strings.NewReplacer("<", "", ">", "")

// SanitizeInput strips angle brackets and caps the input at MaxInputLength runes.
func SanitizeInput(s string) string {
	s = angleBrackets.Replace(s)
	if r := []rune(s); len(r) > MaxInputLength {
		s = string(r[:MaxInputLength])
	}
	return s
}

// ValidateUpload checks an uploaded file's size and extension. A nil
// allowed list means DefaultAllowedExtensions.
func ValidateUpload(filename string, size int64, allowed []string, maxSize int64) error {
	if allowed == nil {
		allowed = DefaultAllowedExtensions
	}
	if maxSize > 0 && size > maxSize {
		return fmt.Errorf("%w (max %d bytes)", ErrFileTooLarge, maxSize)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	return ErrFileTypeNotAllowed
}

// SecureFilename replaces the client supplied name with a random one, keeping
// only the extension.
func SecureFilename(original string) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ToLower(filepath.Ext(original))
}
