package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Specifix5/mikushare/internal/keygen"
)

var (
	ErrInvalidTTL   = errors.New("invalid ttl")
	ErrFileTooLarge = errors.New("file too large")
)

// extPattern bounds client supplied extensions to something safe for a filename
var extPattern = regexp.MustCompile(`^\.[A-Za-z0-9_-]{1,32}$`)

// ParseTTL parses the upload ttl form value in whole hours.
// An empty value means the upload is permanent and yields 0.
func ParseTTL(raw string, maxHours int) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}

	hours, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidTTL, raw)
	}
	if hours < 1 || hours > maxHours {
		return 0, fmt.Errorf("%w: must be between 1 and %d hours", ErrInvalidTTL, maxHours)
	}

	return time.Duration(hours) * time.Hour, nil
}

// CheckSize rejects payloads strictly larger than limit. Exactly limit bytes is accepted.
func CheckSize(size, limit int64) error {
	if size > limit {
		return fmt.Errorf("%w (max %s)", ErrFileTooLarge, humanize.IBytes(uint64(limit)))
	}
	return nil
}

// Extension returns the extension of the client filename, or .png when it
// has none. Extensions with characters unsafe for a filename also get .png.
func Extension(filename string) string {
	ext := filepath.Ext(filename)
	if extPattern.MatchString(ext) {
		return ext
	}
	return keygen.DefaultExt
}
