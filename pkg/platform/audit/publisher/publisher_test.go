package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "keepsake/pkg/domain"
	audit "keepsake/pkg/platform/audit"
	"keepsake/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	vaultID := id.NewVaultID()
	err := pub.Emit(context.Background(), audit.Event{
		VaultID: vaultID,
		Action:  string(audit.EventVaultInitialized),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), vaultID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventVaultInitialized), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category, "category derived from action")
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	vaultID := id.NewVaultID()
	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			VaultID: vaultID,
			Action:  string(audit.EventHeartbeatReceived),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListByVault(context.Background(), vaultID)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventDecryptFailed)})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	pub := NewPublisher(store, WithClock(func() time.Time { return fixed }))
	defer pub.Close()

	vaultID := id.NewVaultID()
	require.NoError(t, pub.Emit(context.Background(), audit.Event{VaultID: vaultID, Action: "x"}))

	events, err := pub.List(context.Background(), vaultID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	vaultID := id.NewVaultID()
	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{VaultID: vaultID, Action: "x", Timestamp: customTime}))

	events, err := pub.List(context.Background(), vaultID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

func TestPublisher_ContextCancellation(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Emit(ctx, audit.Event{Action: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

type failingSink struct{ calls int }

func (f *failingSink) Append(context.Context, audit.Event) error {
	f.calls++
	return errors.New("broker down")
}

func TestPublisher_SinkFailureDoesNotFailEmit(t *testing.T) {
	store := memory.NewInMemoryStore()
	sink := &failingSink{}
	pub := NewPublisher(store, WithSink(sink))
	defer pub.Close()

	vaultID := id.NewVaultID()
	require.NoError(t, pub.Emit(context.Background(), audit.Event{VaultID: vaultID, Action: "x"}))

	assert.Equal(t, 1, sink.calls)
	events, err := store.ListByVault(context.Background(), vaultID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
