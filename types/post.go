package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrPostFinal is returned when mutating a post that already reached a final status
var ErrPostFinal = errors.New("post already in final status")

// PostStatus represents the publishing state of a generated post
type PostStatus string

const (
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPosted    PostStatus = "posted"
	PostStatusFailed    PostStatus = "failed"
)

// Final reports whether the status can no longer change
func (s PostStatus) Final() bool {
	return s == PostStatusPosted || s == PostStatusFailed
}

// GeneratedPost is the artifact produced by a successful cycle
type GeneratedPost struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Topic         string     `json:"topic,omitempty"`
	SourceURLs    []string   `json:"source_urls,omitempty"`
	ImageURL      string     `json:"image_url,omitempty"`
	VideoURL      string     `json:"video_url,omitempty"`
	ThumbnailURL  string     `json:"thumbnail_url,omitempty"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	Status        PostStatus `json:"status"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Due reports whether a scheduled post should be published at now
func (p *GeneratedPost) Due(now time.Time) bool {
	return p.Status == PostStatusScheduled && !p.ScheduledTime.After(now)
}

// MarkPosted transitions Scheduled -> Posted
func (p *GeneratedPost) MarkPosted(at time.Time) error {
	if p.Status.Final() {
		return fmt.Errorf("%w: %s is %s", ErrPostFinal, p.ID, p.Status)
	}
	p.Status = PostStatusPosted
	p.PublishedAt = &at
	p.Error = ""
	return nil
}

// MarkFailed transitions Scheduled -> Failed
func (p *GeneratedPost) MarkFailed(reason string) error {
	if p.Status.Final() {
		return fmt.Errorf("%w: %s is %s", ErrPostFinal, p.ID, p.Status)
	}
	p.Status = PostStatusFailed
	p.Error = reason
	return nil
}
