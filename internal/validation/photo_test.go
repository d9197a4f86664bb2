package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePhoto(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPhotoFileValidator_Accepts(t *testing.T) {
	dir := t.TempDir()
	v := NewPhotoFileValidator()

	for _, name := range []string{"a.jpg", "b.jpeg", "c.png", "d.webp", "e.JPG"} {
		path := writePhoto(t, dir, name, 128)
		abs, err := v.Validate(path)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
			continue
		}
		if !filepath.IsAbs(abs) {
			t.Errorf("%s: expected absolute path, got %q", name, abs)
		}
	}
}

func TestPhotoFileValidator_Rejects(t *testing.T) {
	dir := t.TempDir()
	v := NewPhotoFileValidator()

	tests := []struct {
		name     string
		path     string
		errorMsg string
	}{
		{"empty path", "", "cannot be empty"},
		{"null byte", "photo\x00.jpg", "null bytes"},
		{"unsupported type", writePhoto(t, dir, "doc.pdf", 64), "unsupported photo type"},
		{"missing file", filepath.Join(dir, "nope.jpg"), "reading photo"},
		{"directory", dir + string(os.PathSeparator) + "sub.jpg", ""},
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.path)
			if err == nil {
				t.Fatalf("expected error for %q", tt.path)
			}
			if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestPhotoFileValidator_SizeCap(t *testing.T) {
	dir := t.TempDir()
	v := NewPhotoFileValidator()
	v.MaxSizeBytes = 256

	if _, err := v.Validate(writePhoto(t, dir, "small.jpg", 256)); err != nil {
		t.Errorf("photo at the cap rejected: %v", err)
	}
	if _, err := v.Validate(writePhoto(t, dir, "big.jpg", 257)); err == nil {
		t.Error("oversized photo accepted")
	} else if !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}
