package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	id "keepsake/pkg/domain"
	audit "keepsake/pkg/platform/audit"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var results kgo.ProduceResults
	for _, r := range rs {
		if f.err == nil {
			f.records = append(f.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func TestSink_AppendPublishesKeyedRecord(t *testing.T) {
	producer := &fakeProducer{}
	sink := New(producer, WithTopic("audit-test"))

	vaultID := id.NewVaultID()
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	err := sink.Append(context.Background(), audit.Event{
		Category:  audit.CategoryCompliance,
		Timestamp: ts,
		VaultID:   vaultID,
		Action:    string(audit.EventSwitchActivated),
		ActorID:   "system",
	})
	require.NoError(t, err)

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "audit-test", rec.Topic)
	assert.Equal(t, vaultID.String(), string(rec.Key))

	var msg map[string]any
	require.NoError(t, json.Unmarshal(rec.Value, &msg))
	assert.Equal(t, "switch_activated", msg["action"])
	assert.Equal(t, "compliance", msg["category"])
}

func TestSink_OpensBreakerAfterRepeatedFailures(t *testing.T) {
	producer := &fakeProducer{err: errors.New("no brokers")}
	sink := New(producer, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	for range 5 {
		assert.Error(t, sink.Append(context.Background(), audit.Event{Action: "x"}))
	}
	assert.False(t, sink.Healthy())

	producer.err = nil
	require.NoError(t, sink.Append(context.Background(), audit.Event{Action: "x"}))
	assert.True(t, sink.Healthy())
}
