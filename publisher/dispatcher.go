// Package publisher moves scheduled posts to their destinations once they
// are due and records the outcome on the post.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"autopilot/activity"
	"autopilot/logging"
	"autopilot/types"

	"github.com/robfig/cron/v3"
)

// AgentPublisher is the activity log source for publishing
const AgentPublisher = "Publisher"

// ErrSkipped is returned by a sink that does not apply to a post
var ErrSkipped = errors.New("publisher: sink does not apply to post")

// Sink is a destination for published posts
type Sink interface {
	Name() string
	Publish(ctx context.Context, post types.GeneratedPost) (ref string, err error)
}

// PostStore is the post collection the dispatcher reads and updates
type PostStore interface {
	Posts(ctx context.Context) ([]types.GeneratedPost, error)
	UpdatePost(ctx context.Context, id string, fn func(*types.GeneratedPost) error) error
}

// Observer is notified of publish outcomes (metrics)
type Observer interface {
	PostPublished(status types.PostStatus)
}

// Dispatcher publishes due posts on a cron schedule
type Dispatcher struct {
	mu       sync.Mutex
	posts    PostStore
	sinks    []Sink
	reporter *activity.Reporter
	observer Observer
	logger   logging.Logger
	now      func() time.Time

	cron     *cron.Cron
	schedule string
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

func WithSchedule(spec string) Option { return func(d *Dispatcher) { d.schedule = spec } }

func WithObserver(o Observer) Option { return func(d *Dispatcher) { d.observer = o } }

func WithLogger(l logging.Logger) Option { return func(d *Dispatcher) { d.logger = l } }

func WithClock(now func() time.Time) Option { return func(d *Dispatcher) { d.now = now } }

// NewDispatcher creates a dispatcher; call Start to begin the schedule
func NewDispatcher(posts PostStore, reporter *activity.Reporter, sinks []Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		posts:    posts,
		sinks:    sinks,
		reporter: reporter,
		logger:   logging.Discard(),
		now:      time.Now,
		cron:     cron.New(),
		schedule: "@every 1m",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start schedules PublishDue
func (d *Dispatcher) Start(ctx context.Context) error {
	_, err := d.cron.AddFunc(d.schedule, func() {
		if _, err := d.PublishDue(ctx); err != nil {
			d.logger.WithError(err).Error("Publish run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add publish job: %w", err)
	}
	d.cron.Start()
	d.logger.WithField("schedule", d.schedule).Info("Publisher started")
	return nil
}

// Stop halts the schedule and waits for a running job
func (d *Dispatcher) Stop(ctx context.Context) error {
	select {
	case <-d.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishDue publishes every scheduled post whose time has come and returns
// how many posts changed status.
func (d *Dispatcher) PublishDue(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	posts, err := d.posts.Posts(ctx)
	if err != nil {
		return 0, fmt.Errorf("load posts: %w", err)
	}

	now := d.now()
	changed := 0
	for _, post := range posts {
		if !post.Due(now) {
			continue
		}
		if d.publish(ctx, post, now) {
			changed++
		}
	}
	return changed, nil
}

// publish delivers post to every sink and then records the outcome. Delivery
// is at least once: when the record fails the post stays scheduled and the
// sinks see it again on the next run.
func (d *Dispatcher) publish(ctx context.Context, post types.GeneratedPost, now time.Time) bool {
	var (
		published []string
		failures  []string
	)
	for _, sink := range d.sinks {
		ref, err := sink.Publish(ctx, post)
		switch {
		case errors.Is(err, ErrSkipped):
			continue
		case err != nil:
			failures = append(failures, fmt.Sprintf("%s: %v", sink.Name(), err))
		default:
			published = append(published, sink.Name())
			d.logger.WithFields(logging.Fields{"post": post.ID, "sink": sink.Name(), "ref": ref}).Info("Post published")
		}
	}

	status := types.PostStatusPosted
	err := d.posts.UpdatePost(ctx, post.ID, func(p *types.GeneratedPost) error {
		if len(failures) > 0 {
			status = types.PostStatusFailed
			return p.MarkFailed(strings.Join(failures, "; "))
		}
		return p.MarkPosted(now)
	})
	if err != nil {
		d.logger.WithError(err).WithFields(logging.Fields{
			"post":      post.ID,
			"published": published,
		}).Error("Failed to record publish outcome, post will be delivered again")
		d.reporter.Error(ctx, AgentPublisher, fmt.Sprintf("Failed to record publish outcome for post %s: %v", post.ID, err))
		return false
	}

	if d.observer != nil {
		d.observer.PostPublished(status)
	}
	label := post.Title
	if label == "" {
		label = post.Topic
	}
	if status == types.PostStatusFailed {
		d.reporter.Error(ctx, AgentPublisher, fmt.Sprintf("Failed to publish %q: %s", label, strings.Join(failures, "; ")))
	} else {
		dest := "schedule"
		if len(published) > 0 {
			dest = strings.Join(published, ", ")
		}
		d.reporter.Success(ctx, AgentPublisher, fmt.Sprintf("Published %q to %s", label, dest))
	}
	return true
}
