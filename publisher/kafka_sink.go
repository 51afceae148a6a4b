package publisher

import (
	"context"
	"fmt"
	"time"

	"autopilot/types"
)

// JSONPublisher sends a JSON message; kafka.Producer satisfies it
type JSONPublisher interface {
	PublishJSON(topic, key string, v any) (partition int32, offset int64, err error)
}

// PostEvent is the message written to the posts topic
type PostEvent struct {
	Type        string              `json:"type"`
	Post        types.GeneratedPost `json:"post"`
	PublishedAt time.Time           `json:"published_at"`
}

// KafkaSink announces published posts on a topic, keyed by post ID
type KafkaSink struct {
	producer JSONPublisher
	topic    string
	now      func() time.Time
}

func NewKafkaSink(producer JSONPublisher, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic, now: time.Now}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(_ context.Context, post types.GeneratedPost) (string, error) {
	event := PostEvent{Type: "post.published", Post: post, PublishedAt: s.now().UTC()}
	partition, offset, err := s.producer.PublishJSON(s.topic, post.ID, event)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%d/%d", s.topic, partition, offset), nil
}
