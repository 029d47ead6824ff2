package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectKey builds a collision-free key under prefix, keeping the original
// file extension.
func ObjectKey(prefix, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("%s/%d-%s%s", strings.Trim(prefix, "/"), time.Now().UTC().Unix(), uuid.New().String(), ext)
}

// keyFromURL accepts only URLs under baseURL whose key is already in
// canonical form, so a key can never point outside the prefix it names.
func keyFromURL(baseURL, rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, baseURL+"/") {
		return "", fmt.Errorf("not a storage url: %q", rawURL)
	}
	key := strings.TrimPrefix(rawURL, baseURL+"/")
	if key == "" || strings.ContainsAny(key, "?#") || path.Clean("/"+key) != "/"+key {
		return "", fmt.Errorf("invalid object key in %q", rawURL)
	}
	return key, nil
}

// FormatBytes renders n in binary units, e.g. "10 MiB".
func FormatBytes(n int64) string {
	const unit = 1024
	switch {
	case n >= unit*unit && n%(unit*unit) == 0:
		return fmt.Sprintf("%d MiB", n/(unit*unit))
	case n >= unit*unit:
		return fmt.Sprintf("%.1f MiB", float64(n)/(unit*unit))
	case n >= unit:
		return fmt.Sprintf("%d KiB", n/unit)
	}
	return fmt.Sprintf("%d bytes", n)
}
