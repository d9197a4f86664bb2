package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PhotoFileValidator checks a photo path before its bytes are read for a
// story submission.
type PhotoFileValidator struct {
	// MaxSizeBytes caps the photo size; the service rejects larger uploads.
	MaxSizeBytes int64
	// AllowedExtensions lists accepted file extensions, lower-case with dot.
	AllowedExtensions []string
}

// NewPhotoFileValidator returns a validator matching the service's limits.
func NewPhotoFileValidator() *PhotoFileValidator {
	return &PhotoFileValidator{
		MaxSizeBytes:      1 << 20, // the service caps uploads at 1 MB
		AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".webp"},
	}
}

// Validate returns the cleaned absolute path, or an error describing why the
// file cannot be submitted.
func (v *PhotoFileValidator) Validate(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("photo path cannot be empty")
	}
	if strings.Contains(path, "\x00") {
		return "", fmt.Errorf("photo path contains null bytes")
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolving photo path: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(abs))
	allowed := false
	for _, e := range v.AllowedExtensions {
		if ext == e {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", fmt.Errorf("unsupported photo type %q", ext)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("reading photo: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("photo path is a directory")
	}
	if v.MaxSizeBytes > 0 && info.Size() > v.MaxSizeBytes {
		return "", fmt.Errorf("photo too large (%d bytes, max %d)", info.Size(), v.MaxSizeBytes)
	}

	return abs, nil
}
