package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode"
)

// SanitizeName keeps letters, digits and a few punctuation characters,
// replacing everything else with '_' and dropping control characters.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

// OutputFilename names a rendered file after its title, e.g.
// "Sunday-Main-Event-20260301-120000.mp4". ext includes the dot.
func OutputFilename(title string, at time.Time, ext string) string {
	base := SanitizeName(title, 60)
	base = strings.Join(strings.Fields(base), "-")
	base = strings.Trim(base, ".")
	if base == "" {
		base = "export"
	}
	return fmt.Sprintf("%s-%s%s", base, at.UTC().Format("20060102-150405"), ext)
}

// ResolveCopyDir turns a user-supplied directory for local copies of
// exports into an absolute path. The directory must already exist and may
// not climb out of where it was given with "..".
func ResolveCopyDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", errors.New("copy directory is empty")
	}
	if slices.Contains(strings.Split(filepath.ToSlash(dir), "/"), "..") {
		return "", fmt.Errorf("copy directory %q climbs out with ..", dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("copy directory %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("copy directory %s does not exist", abs)
	case err != nil:
		return "", fmt.Errorf("copy directory %s: %w", abs, err)
	case !info.IsDir():
		return "", fmt.Errorf("copy directory %s is a file", abs)
	}
	return abs, nil
}
