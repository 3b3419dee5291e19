// Package artifact persists every run's raw stage outputs and final package.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrNotFound = errors.New("artifact not found")

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Record 一次运行的持久化信封；保存后不可变。
type Record struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	RunID        string            `json:"run_id"`
	Slug         string            `json:"slug"`
	Timestamp    time.Time         `json:"timestamp"`
	Status       Status            `json:"status"`
	Error        string            `json:"error_message,omitempty"`
	RawOutputs   map[string]string `json:"raw_outputs"`
	Package      json.RawMessage   `json:"final_parsed_package,omitempty"`
	PantryBasket string            `json:"pantry_basket_name,omitempty"`
}

// Store is the persistence contract. Save allocates the monotonic ID and the
// name; Get accepts either.
type Store interface {
	Save(ctx context.Context, rec Record) (Record, error)
	List(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (Record, error)
}

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9-]+`)

// RecordName builds "<user>_<0000id>_<slug>_<timestamp>".
func RecordName(user string, id int64, slug string, ts time.Time) string {
	return fmt.Sprintf("%s_%04d_%s_%s",
		safeSegment(user, "anonymous"),
		id,
		safeSegment(slug, "no-slug"),
		ts.UTC().Format("20060102_150405"))
}

func safeSegment(s, fallback string) string {
	s = strings.Trim(unsafeNameRe.ReplaceAllString(strings.TrimSpace(s), "-"), "-")
	if len(s) > 60 {
		s = strings.TrimRight(s[:60], "-")
	}
	if s == "" {
		return fallback
	}
	return s
}

// parseID accepts a bare number or a record name and returns the numeric id.
func parseID(id string) (int64, bool) {
	id = strings.TrimSpace(id)
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n, true
	}
	// 名称中各段不含下划线，第二段即编号。
	parts := strings.Split(id, "_")
	if len(parts) < 2 {
		return 0, false
	}
	n, err := strconv.ParseInt(parts[1], 10, 64)
	return n, err == nil
}

func prepare(rec Record, id int64, user string, now time.Time) Record {
	rec.ID = id
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}
	if rec.Status == "" {
		rec.Status = StatusSuccess
		if rec.Error != "" {
			rec.Status = StatusError
		}
	}
	if rec.RawOutputs == nil {
		rec.RawOutputs = map[string]string{}
	}
	rec.Name = RecordName(user, id, rec.Slug, rec.Timestamp)
	return rec
}
