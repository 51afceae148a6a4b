// Package activity keeps the bounded, user-facing activity log shared by the
// cycle executor and manual actions.
package activity

import (
	"context"
	"sync"
	"time"

	"autopilot/config"
	"autopilot/logging"
	"autopilot/types"

	"github.com/google/uuid"
)

// LogSink persists entries. The store Repository satisfies it.
type LogSink interface {
	PrependLog(ctx context.Context, entry types.ActivityLogEntry, limit int) error
	Logs(ctx context.Context) ([]types.ActivityLogEntry, error)
}

// Reporter holds the most recent entries, newest first (thread-safe)
type Reporter struct {
	mu      sync.RWMutex
	entries []types.ActivityLogEntry
	maxLogs int

	sink     LogSink
	logger   logging.Logger
	now      func() time.Time
	onRecord func(types.ActivityLogEntry)
}

// Option configures a Reporter
type Option func(*Reporter)

// WithSink writes every entry through to persistent storage
func WithSink(sink LogSink) Option { return func(r *Reporter) { r.sink = sink } }

// WithLogger mirrors entries into the process log
func WithLogger(l logging.Logger) Option { return func(r *Reporter) { r.logger = l } }

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option { return func(r *Reporter) { r.now = now } }

// WithLimit overrides the number of retained entries
func WithLimit(n int) Option { return func(r *Reporter) { r.maxLogs = n } }

// OnRecord registers a hook called after every append (metrics)
func OnRecord(fn func(types.ActivityLogEntry)) Option { return func(r *Reporter) { r.onRecord = fn } }

// NewReporter creates a reporter keeping the last 50 entries by default
func NewReporter(opts ...Option) *Reporter {
	r := &Reporter{
		maxLogs: config.MaxActivityEntries,
		logger:  logging.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.entries = make([]types.ActivityLogEntry, 0, r.maxLogs)
	return r
}

// Load hydrates the in-memory log from the sink
func (r *Reporter) Load(ctx context.Context) error {
	if r.sink == nil {
		return nil
	}
	logs, err := r.sink.Logs(ctx)
	if err != nil {
		return err
	}
	if len(logs) > r.maxLogs {
		logs = logs[:r.maxLogs]
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries[:0], logs...)
	return nil
}

// Record appends an entry, evicting the oldest once the limit is exceeded
func (r *Reporter) Record(ctx context.Context, agentName, message string, status types.ActivityStatus) types.ActivityLogEntry {
	entry := types.ActivityLogEntry{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Timestamp: r.now(),
		AgentName: agentName,
		Message:   message,
		Status:    status,
	}

	r.mu.Lock()
	r.entries = append([]types.ActivityLogEntry{entry}, r.entries...)
	if len(r.entries) > r.maxLogs {
		r.entries = r.entries[:r.maxLogs]
	}
	r.mu.Unlock()

	fields := logging.Fields{"agent": agentName, "status": status}
	if status == types.ActivityError {
		r.logger.WithFields(fields).Warn(message)
	} else {
		r.logger.WithFields(fields).Info(message)
	}

	if r.sink != nil {
		if err := r.sink.PrependLog(ctx, entry, r.maxLogs); err != nil {
			r.logger.WithError(err).Warn("failed to persist activity entry")
		}
	}
	if r.onRecord != nil {
		r.onRecord(entry)
	}
	return entry
}

// Success records a success entry
func (r *Reporter) Success(ctx context.Context, agentName, message string) types.ActivityLogEntry {
	return r.Record(ctx, agentName, message, types.ActivitySuccess)
}

// Error records an error entry
func (r *Reporter) Error(ctx context.Context, agentName, message string) types.ActivityLogEntry {
	return r.Record(ctx, agentName, message, types.ActivityError)
}

// Entries returns a snapshot, newest first
func (r *Reporter) Entries() []types.ActivityLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.ActivityLogEntry{}, r.entries...)
}

// Len returns the number of retained entries
func (r *Reporter) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
