package rpc

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/BullionBear/sequex/internal/aggregator"
	"github.com/BullionBear/sequex/internal/fanout"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// fakeServerStream is a minimal grpc.ServerStream that records every
// message sent through SendMsg, for exercising Server.BookSummary without
// a real network listener.
type fakeServerStream struct {
	ctx  context.Context
	sent chan *Summary
}

func newFakeServerStream(ctx context.Context) *fakeServerStream {
	return &fakeServerStream{ctx: ctx, sent: make(chan *Summary, 16)}
}

func (f *fakeServerStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeServerStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeServerStream) SetTrailer(metadata.MD)       {}
func (f *fakeServerStream) Context() context.Context     { return f.ctx }
func (f *fakeServerStream) SendMsg(m interface{}) error {
	f.sent <- m.(*Summary)
	return nil
}
func (f *fakeServerStream) RecvMsg(m interface{}) error { return nil }

var _ grpc.ServerStream = (*fakeServerStream)(nil)

func TestBookSummaryStreamsPublishedSummaries(t *testing.T) {
	broadcaster := fanout.New(4)
	server := NewServer(broadcaster, zerolog.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := newFakeServerStream(ctx)

	done := make(chan error, 1)
	go func() { done <- server.BookSummary(&Empty{}, stream) }()

	// Give BookSummary time to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	broadcaster.Publish(aggregator.Summary{
		Spread: decimal.RequireFromString("1.5"),
		Bids:   []aggregator.Level{{Price: decimal.RequireFromString("100"), Quantity: decimal.RequireFromString("2"), Venue: "binance"}},
		Asks:   []aggregator.Level{{Price: decimal.RequireFromString("101.5"), Quantity: decimal.RequireFromString("3"), Venue: "bitstamp"}},
	})

	select {
	case msg := <-stream.sent:
		assert.Equal(t, 1.5, msg.Spread)
		require.Len(t, msg.Bids, 1)
		assert.Equal(t, "binance", msg.Bids[0].Exchange)
		require.Len(t, msg.Asks, 1)
		assert.Equal(t, "bitstamp", msg.Asks[0].Exchange)
	case <-time.After(time.Second):
		t.Fatal("did not receive streamed summary")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("BookSummary did not return after client cancel")
	}
}

func TestBookSummaryEndsWhenBroadcasterCloses(t *testing.T) {
	broadcaster := fanout.New(4)
	server := NewServer(broadcaster, zerolog.New(io.Discard))

	ctx := context.Background()
	stream := newFakeServerStream(ctx)

	done := make(chan error, 1)
	go func() { done <- server.BookSummary(&Empty{}, stream) }()

	time.Sleep(20 * time.Millisecond)
	broadcaster.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("BookSummary did not return after broadcaster close")
	}
}

func TestJSONCodecRoundTrip(t *testing.T) {
	codec := jsonCodec{}
	original := &Summary{Spread: 0.5, Bids: []Level{{Price: 1, Amount: 2, Exchange: "binance"}}}

	data, err := codec.Marshal(original)
	require.NoError(t, err)

	var decoded Summary
	require.NoError(t, codec.Unmarshal(data, &decoded))
	assert.Equal(t, *original, decoded)
	assert.Equal(t, "json", codec.Name())
}
