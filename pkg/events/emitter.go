// Package events publishes reconciliation lifecycle events to Kafka
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/subdivisions/pkg/tracing"
)

// Emitter handles event emission for the registry
type Emitter struct {
	producer *Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitLevelReconciled emits a level reconciled event keyed by level.
func (e *Emitter) EmitLevelReconciled(ctx context.Context, event LevelReconciled) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitLevelReconciled")
	defer span.End()

	if event.EventType == "" {
		event.BaseEvent = NewBaseEvent(EventTypeLevelReconciled)
	}

	if err := e.producer.Publish(ctx, event.Level, event.EventType, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"level": event.Level,
			"year":  event.Year,
		}).Error("Failed to emit level reconciled event")
		return err
	}

	return nil
}
