package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/BullionBear/sequex/internal/aggregator"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summaryWithSpread(spread string) aggregator.Summary {
	return aggregator.Summary{Spread: decimal.RequireFromString(spread)}
}

func TestSubscribeAfterMissesEarlierSummaries(t *testing.T) {
	b := New(4)
	b.Publish(summaryWithSpread("1"))

	sub := b.Subscribe()
	b.Publish(summaryWithSpread("2"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	env, ok := sub.Recv(ctx)
	require.True(t, ok)
	assert.True(t, env.Summary.Spread.Equal(decimal.RequireFromString("2")))
}

func TestFullBufferDropsOldestAndReportsLag(t *testing.T) {
	b := New(2)
	sub := b.Subscribe()

	b.Publish(summaryWithSpread("1"))
	b.Publish(summaryWithSpread("2"))
	b.Publish(summaryWithSpread("3")) // buffer full at publish 3: drops "1"

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, ok := sub.Recv(ctx)
	require.True(t, ok)
	assert.True(t, first.Summary.Spread.Equal(decimal.RequireFromString("2")))
	assert.Equal(t, 0, first.Lagged)

	second, ok := sub.Recv(ctx)
	require.True(t, ok)
	assert.True(t, second.Summary.Spread.Equal(decimal.RequireFromString("3")))
	assert.Equal(t, 1, second.Lagged)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, ok := sub.Recv(ctx)
	assert.False(t, ok)
}

func TestCloseEndsAllSubscribersAndFutureSubscribes(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, ok := sub.Recv(ctx)
	assert.False(t, ok)

	late := b.Subscribe()
	_, ok = late.Recv(ctx)
	assert.False(t, ok)
}

func TestPublishNeverBlocksWithNoSubscribers(t *testing.T) {
	b := New(1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(summaryWithSpread("1"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestMultipleSubscribersEachReceiveIndependently(t *testing.T) {
	b := New(4)
	subA := b.Subscribe()
	subB := b.Subscribe()

	b.Publish(summaryWithSpread("5"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	envA, ok := subA.Recv(ctx)
	require.True(t, ok)
	envB, ok := subB.Recv(ctx)
	require.True(t, ok)
	assert.True(t, envA.Summary.Spread.Equal(decimal.RequireFromString("5")))
	assert.True(t, envB.Summary.Spread.Equal(decimal.RequireFromString("5")))
}
