package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nobconsult/internal/domain"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

type recordingPublisher struct {
	got []Event
	err error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.got = append(p.got, e)
	return p.err
}

func sampleApp() *domain.Application {
	return &domain.Application{
		ID:                42,
		ApplicationNumber: "NOB-2026-0042",
		Status:            domain.ApplicationProcessing,
		Revision:          3,
		UpdatedAt:         time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_KeysByApplication(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{w: w}

	e := New(StatusChanged, domain.Actor{UserID: 9}, sampleApp())
	require.NoError(t, p.Publish(context.Background(), e))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "42", string(w.msgs[0].Key))
	assert.Equal(t, "event-type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, string(StatusChanged), string(w.msgs[0].Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, int64(3), decoded.Revision)
	assert.Equal(t, int64(9), decoded.ActorID)
	assert.Equal(t, domain.ApplicationProcessing, decoded.Snapshot.Status)
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingPublisher{}
	b := &recordingPublisher{err: boom}
	c := &recordingPublisher{}

	err := Fanout{a, nil, b, c}.Publish(context.Background(), New(MessageSent, domain.Actor{}, sampleApp()))

	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
	assert.Len(t, c.got, 1)
}
