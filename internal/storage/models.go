package storage

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("not found")

// ErrMissingProject is returned by Insert when the project name is empty.
var ErrMissingProject = errors.New("project name is required")

// TimestampLayout is the local-time, second-precision format of LogRecord.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// LogRecord is one captured build log.
type LogRecord struct {
	ID        int64  `json:"id"`
	Hash      string `json:"hash"`
	Project   string `json:"project"`
	Timestamp string `json:"timestamp"`
	Tags      string `json:"tags"` // comma-joined
	Log       string `json:"log"`
}

// TagList splits Tags on commas. Tags that themselves contain a comma do not
// survive the round trip.
func (r LogRecord) TagList() []string {
	if r.Tags == "" {
		return nil
	}
	return strings.Split(r.Tags, ",")
}
