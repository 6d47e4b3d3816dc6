package events_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/subdivisions/pkg/events"
	"github.com/Ramsey-B/subdivisions/pkg/logging"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestEmitter_EmitLevelReconciled(t *testing.T) {
	writer := &recordingWriter{}
	producer := events.NewProducerWithWriter(writer, "subdivisions-events", logging.NewNopLogger())
	emitter := events.NewEmitter(producer, logging.NewNopLogger())

	err := emitter.EmitLevelReconciled(context.Background(), events.LevelReconciled{
		Operation:    "cog",
		Level:        "region",
		Year:         2021,
		Created:      18,
		YearExtended: 0,
		Unchanged:    0,
		DataPoints:   18,
		SourceURL:    "https://example.test/cog.zip",
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "subdivisions-events", msg.Topic)
	assert.Equal(t, "region", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, string(events.EventTypeLevelReconciled), string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "subdivisions.level.reconciled", decoded["event_type"])
	assert.Equal(t, float64(2021), decoded["year"])
	assert.Equal(t, float64(18), decoded["created"])
	assert.NotEmpty(t, decoded["correlation_id"])

	require.NoError(t, producer.Close())
	assert.True(t, writer.closed)
}

func TestEmitter_WriteFailure(t *testing.T) {
	writer := &recordingWriter{err: assert.AnError}
	emitter := events.NewEmitter(events.NewProducerWithWriter(writer, "t", logging.NewNopLogger()), logging.NewNopLogger())

	err := emitter.EmitLevelReconciled(context.Background(), events.LevelReconciled{Level: "epci", Year: 2021})
	assert.ErrorIs(t, err, assert.AnError)
}
