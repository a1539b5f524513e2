package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// DefaultSettleDelay is how long a file must stay unchanged before it is reported.
const DefaultSettleDelay = 2 * time.Second

// Options configures the inbox watcher.
type Options struct {
	// Extensions lists the accepted file extensions, compared case-insensitively.
	Extensions     []string
	IgnorePatterns []string
	SettleDelay    time.Duration
	IgnoreHidden   bool
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if len(o.Extensions) == 0 {
		o.Extensions = []string{".xlsx"}
	}

	// Default ignore patterns only when none were given (nil, not empty).
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			"~$*", // Excel lock files
			".DS_Store",
			"*.tmp",
			"*.temp",
			"*.part",
			"*.crdownload",
			"Thumbs.db",
		}
		o.IgnoreHidden = true
	}
}

// shouldIgnore checks if a path matches ignore patterns.
func (o *Options) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if o.IgnoreHidden && strings.HasPrefix(base, ".") {
		return true
	}

	for _, pattern := range o.IgnorePatterns {
		matched, err := filepath.Match(pattern, base)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// accepts reports whether path is a workbook the inbox should report.
func (o *Options) accepts(path string) bool {
	if o.shouldIgnore(path) {
		return false
	}
	ext := filepath.Ext(path)
	for _, want := range o.Extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}
