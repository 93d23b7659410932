package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "Hello World", SanitizeInput("Hello World"))
	assert.Equal(t, "Hello scriptalert('xss')/script World", SanitizeInput("Hello <script>alert('xss')</script> World"))

	long := strings.Repeat("a", MaxInputLength+500)
	assert.Len(t, SanitizeInput(long), MaxInputLength)
}

func TestValidateUpload(t *testing.T) {
	assert.NoError(t, ValidateUpload("sales.CSV", 1024, nil, 10<<20))
	assert.ErrorIs(t, ValidateUpload("malware.exe", 1024, nil, 10<<20), ErrFileTypeNotAllowed)
	assert.ErrorIs(t, ValidateUpload("big.csv", 11<<20, nil, 10<<20), ErrFileTooLarge)
	assert.ErrorIs(t, ValidateUpload("photo.png", 10, []string{".csv"}, 0), ErrFileTypeNotAllowed)
}

func TestSecureFilename(t *testing.T) {
	a := SecureFilename("test_image.jpg")
	b := SecureFilename("test_image.jpg")

	assert.True(t, strings.HasSuffix(a, ".jpg"))
	assert.Greater(t, len(a), len("test_image.jpg"))
	assert.NotEqual(t, a, b)
	assert.NotContains(t, SecureFilename("../../etc/passwd"), "/")
}
