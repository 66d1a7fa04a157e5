package venue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func depthEvent(firstID, finalID int64, bids, asks [][2]string) binanceDepthEvent {
	return binanceDepthEvent{EventType: "depthUpdate", FirstID: firstID, FinalID: finalID, Bids: bids, Asks: asks}
}

func TestBinanceReconcilerDeltaBeforeSnapshotIsDiscarded(t *testing.T) {
	r := &binanceReconciler{}
	_, accepted, err := r.applyDelta(depthEvent(1, 5, nil, nil))
	require.NoError(t, err)
	assert.False(t, accepted)
}

func TestBinanceReconcilerAcceptsOverlappingDelta(t *testing.T) {
	r := &binanceReconciler{}
	_, err := r.applySnapshot(binanceSnapshot{LastUpdateID: 100})
	require.NoError(t, err)

	update, accepted, err := r.applyDelta(depthEvent(95, 105, [][2]string{{"10", "1"}}, nil))
	require.NoError(t, err)
	assert.True(t, accepted)
	require.Len(t, update.Bids, 1)
	assert.Equal(t, int64(105), r.lastSeenID)
}

func TestBinanceReconcilerDropsStaleDelta(t *testing.T) {
	r := &binanceReconciler{}
	_, err := r.applySnapshot(binanceSnapshot{LastUpdateID: 100})
	require.NoError(t, err)

	_, accepted, err := r.applyDelta(depthEvent(50, 100, nil, nil))
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Equal(t, int64(100), r.lastSeenID)
}

func TestBinanceReconcilerGapIsUnrecoverable(t *testing.T) {
	r := &binanceReconciler{}
	_, err := r.applySnapshot(binanceSnapshot{LastUpdateID: 100})
	require.NoError(t, err)

	_, accepted, err := r.applyDelta(depthEvent(110, 120, nil, nil))
	assert.False(t, accepted)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidUpdateID))
}

func TestBinanceReconcilerSequenceOfDeltasAdvancesMonotonically(t *testing.T) {
	r := &binanceReconciler{}
	_, err := r.applySnapshot(binanceSnapshot{LastUpdateID: 10})
	require.NoError(t, err)

	_, accepted, err := r.applyDelta(depthEvent(8, 11, nil, nil))
	require.NoError(t, err)
	require.True(t, accepted)
	assert.Equal(t, int64(11), r.lastSeenID)

	_, accepted, err = r.applyDelta(depthEvent(12, 13, nil, nil))
	require.NoError(t, err)
	require.True(t, accepted)
	assert.Equal(t, int64(13), r.lastSeenID)
}

func TestBinanceReconcilerSnapshotAfterGapResets(t *testing.T) {
	r := &binanceReconciler{}
	_, err := r.applySnapshot(binanceSnapshot{LastUpdateID: 100})
	require.NoError(t, err)

	_, _, err = r.applyDelta(depthEvent(110, 120, nil, nil))
	require.Error(t, err)

	_, err = r.applySnapshot(binanceSnapshot{LastUpdateID: 200})
	require.NoError(t, err)
	assert.Equal(t, int64(200), r.lastSeenID)

	_, accepted, err := r.applyDelta(depthEvent(195, 205, nil, nil))
	require.NoError(t, err)
	assert.True(t, accepted)
}
