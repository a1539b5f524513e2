package watcher

import "time"

// Event reports a workbook that arrived in the inbox and stopped changing.
type Event struct {
	Path    string
	Size    int64
	ModTime time.Time
}
