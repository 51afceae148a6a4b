package orchestrator

import (
	"context"

	"autopilot/kafka"
	"autopilot/types"
)

// ControlHandler applies CycleConfig messages from the control topic.
// Invalid messages are marked and skipped. A failed apply leaves the message
// unmarked and ends the consumer session, so it is redelivered in order.
func (l *Loop) ControlHandler() *kafka.TypedMessageHandler[types.CycleConfig] {
	return &kafka.TypedMessageHandler[types.CycleConfig]{
		Validate: func(cfg *types.CycleConfig) error {
			return cfg.Validate()
		},
		Process: func(ctx context.Context, cfg *types.CycleConfig) error {
			l.logger.WithField("active", cfg.IsActive).Info("Applying config from control topic")
			return l.UpdateConfig(ctx, *cfg)
		},
		AlwaysMark: true,
		Logger:     l.logger,
	}
}
