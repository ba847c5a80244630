package broadcast_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingopad/lexsync/pkg/broadcast"
)

// Two spools over one directory stand in for two browser contexts of the
// same profile.
func TestSpool_CrossContextDelivery(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	brokerA := broadcast.NewBroker(0, nil)
	brokerB := broadcast.NewBroker(0, nil)
	defer brokerA.Close()
	defer brokerB.Close()

	spoolA, err := broadcast.NewSpool(broadcast.SpoolConfig{Dir: dir, Broker: brokerA})
	require.NoError(t, err)
	spoolB, err := broadcast.NewSpool(broadcast.SpoolConfig{Dir: dir, Broker: brokerB})
	require.NoError(t, err)

	require.NoError(t, spoolA.Start(ctx))
	require.NoError(t, spoolB.Start(ctx))
	defer spoolA.Stop(ctx)
	defer spoolB.Stop(ctx)

	// Give the watchers a moment to arm (Start is async).
	time.Sleep(200 * time.Millisecond)

	eventsB, cancelB := brokerB.Subscribe("")
	defer cancelB()

	require.NoError(t, spoolA.Publish(event("n1", "e-cross", "daily")))

	got := recv(t, eventsB)
	assert.Equal(t, "e-cross", got.EventID)
	assert.Equal(t, "n1", got.ID)
}

func TestSpool_SkipsOwnEvents(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	broker := broadcast.NewBroker(0, nil)
	defer broker.Close()

	spool, err := broadcast.NewSpool(broadcast.SpoolConfig{Dir: dir, Broker: broker})
	require.NoError(t, err)
	require.NoError(t, spool.Start(ctx))
	defer spool.Stop(ctx)

	time.Sleep(200 * time.Millisecond)

	events, cancel := broker.Subscribe("")
	defer cancel()

	require.NoError(t, spool.Publish(event("n1", "e-own", "daily")))

	select {
	case ev := <-events:
		t.Fatalf("own event came back through the spool: %v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSpool_DistinctContextIDs(t *testing.T) {
	dir := t.TempDir()
	broker := broadcast.NewBroker(0, nil)
	defer broker.Close()

	a, err := broadcast.NewSpool(broadcast.SpoolConfig{Dir: dir, Broker: broker})
	require.NoError(t, err)
	b, err := broadcast.NewSpool(broadcast.SpoolConfig{Dir: dir, Broker: broker})
	require.NoError(t, err)

	assert.NotEqual(t, a.ContextID(), b.ContextID())
}
