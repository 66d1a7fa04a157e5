package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BullionBear/sequex/internal/book"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	binanceWSHost       = "stream.binance.com:9443"
	binanceRESTHost     = "api.binance.com"
	binanceReconnectMin = 1 * time.Second
)

type binanceDepthEvent struct {
	EventType string     `json:"e"`
	EventTime int64      `json:"E"`
	FirstID   int64      `json:"U"`
	FinalID   int64      `json:"u"`
	Bids      [][2]string `json:"b"`
	Asks      [][2]string `json:"a"`
}

type binanceSnapshot struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// BinanceStyleAdaptor implements the sequence-ID reconciliation protocol of
// spec.md §4.2 against Venue A's wire shapes (spec.md §6).
type BinanceStyleAdaptor struct {
	pair         Pair
	depth        int
	streamBuffer int
	logger       zerolog.Logger

	wsHost     string
	restHost   string
	httpClient *http.Client
}

// NewBinanceStyleAdaptor constructs an adaptor for pair, requesting depth
// price levels on snapshot refresh. streamBuffer bounds the internal
// socket-to-handler channel capacity.
func NewBinanceStyleAdaptor(pair Pair, depth, streamBuffer int, logger zerolog.Logger) *BinanceStyleAdaptor {
	return &BinanceStyleAdaptor{
		pair:         pair,
		depth:        depth,
		streamBuffer: streamBuffer,
		logger:       logger,
		wsHost:       binanceWSHost,
		restHost:     binanceRESTHost,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Run drives the stream task and the handler task for the lifetime of ctx.
// It returns nil on clean cancellation and a non-nil error only on an
// unrecoverable protocol violation (spec.md §5).
func (a *BinanceStyleAdaptor) Run(ctx context.Context, out chan<- book.PriceLevelUpdate) error {
	frames := make(chan rawFrame, a.streamBuffer)
	go a.streamTask(ctx, frames)
	return a.handlerTask(ctx, frames, out)
}

// streamTask owns the socket: dial, reconnect with backoff, reply to
// keepalive pings, and push raw frames (plus a sentinel right after every
// reconnect) onto frames. It never blocks on HTTP, so a slow snapshot
// fetch in the handler task cannot stall socket liveness.
func (a *BinanceStyleAdaptor) streamTask(ctx context.Context, frames chan<- rawFrame) {
	url := fmt.Sprintf("wss://%s/ws/%s@depth", a.wsHost, a.pair.Lower())
	backoff := binanceReconnectMin

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			a.logger.Warn().Err(err).Dur("backoff", backoff).Msg("binance dial failed")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			continue
		}
		backoff = binanceReconnectMin

		conn.SetPingHandler(func(appData string) error {
			return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
		})

		select {
		case frames <- rawFrame{sentinel: true}:
		case <-ctx.Done():
			conn.Close()
			return
		}

		a.readUntilClosed(ctx, conn, frames)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		a.logger.Info().Msg("binance socket closed, reconnecting")
	}
}

func (a *BinanceStyleAdaptor) readUntilClosed(ctx context.Context, conn *websocket.Conn, frames chan<- rawFrame) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				a.logger.Warn().Err(err).Msg("binance read error")
			}
			return
		}
		select {
		case frames <- rawFrame{data: data}:
		default:
			a.logger.Warn().Msg("binance frame dropped, handler backlogged")
		}
	}
}

// handlerTask consumes frames, fetches snapshots over HTTP on the
// sentinel, runs the sequence-ID state machine, and forwards normalized
// updates onto out.
func (a *BinanceStyleAdaptor) handlerTask(ctx context.Context, frames <-chan rawFrame, out chan<- book.PriceLevelUpdate) error {
	reconciler := &binanceReconciler{}

	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-frames:
			if frame.sentinel {
				snap, err := a.fetchSnapshot(ctx)
				if err != nil {
					a.logger.Warn().Err(err).Msg("binance snapshot fetch failed")
					continue
				}
				update, err := reconciler.applySnapshot(snap)
				if err != nil {
					a.logger.Warn().Err(err).Msg("binance snapshot malformed")
					continue
				}
				if !trySend(ctx, out, update) {
					return nil
				}
				continue
			}

			var event binanceDepthEvent
			if err := json.Unmarshal(frame.data, &event); err != nil {
				a.logger.Warn().Err(err).Msg("binance frame parse failed")
				continue
			}
			if event.EventType != "" && event.EventType != "depthUpdate" {
				a.logger.Warn().Str("event", event.EventType).Msg("binance unexpected event kind")
				continue
			}

			update, accepted, err := reconciler.applyDelta(event)
			if err != nil {
				return err
			}
			if !accepted {
				continue
			}
			if !trySend(ctx, out, update) {
				return nil
			}
		}
	}
}

func (a *BinanceStyleAdaptor) fetchSnapshot(ctx context.Context) (binanceSnapshot, error) {
	url := fmt.Sprintf("https://%s/api/v3/depth?symbol=%s&limit=%d", a.restHost, a.pair.Upper(), a.depth)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return binanceSnapshot{}, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return binanceSnapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return binanceSnapshot{}, fmt.Errorf("binance snapshot: status %d: %s", resp.StatusCode, string(body))
	}

	var snap binanceSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return binanceSnapshot{}, fmt.Errorf("binance snapshot decode: %w", err)
	}
	return snap, nil
}

// binanceReconciler implements spec.md §4.2's snapshot/delta reconciliation
// rule in isolation from any I/O, so it can be exercised directly by tests
// (S5, S6, and the monotone-acceptance property).
type binanceReconciler struct {
	lastSeenID   int64
	haveSnapshot bool
}

func (r *binanceReconciler) applySnapshot(snap binanceSnapshot) (book.PriceLevelUpdate, error) {
	update, err := levelsFromPairs(snap.Bids, snap.Asks, string(Binance))
	if err != nil {
		return book.PriceLevelUpdate{}, err
	}
	r.lastSeenID = snap.LastUpdateID
	r.haveSnapshot = true
	return update, nil
}

// applyDelta returns (update, accepted, err). err is non-nil only for the
// unrecoverable gap case; accepted is false for a dropped (stale or
// pre-snapshot) delta.
func (r *binanceReconciler) applyDelta(event binanceDepthEvent) (book.PriceLevelUpdate, bool, error) {
	if !r.haveSnapshot {
		// Buffered deltas can arrive before the snapshot sentinel is
		// serviced; discard them (spec.md §9(c)) and wait for the snapshot.
		return book.PriceLevelUpdate{}, false, nil
	}
	if event.FinalID <= r.lastSeenID {
		return book.PriceLevelUpdate{}, false, nil
	}
	if event.FirstID <= r.lastSeenID+1 && r.lastSeenID+1 <= event.FinalID {
		update, err := levelsFromPairs(event.Bids, event.Asks, string(Binance))
		if err != nil {
			return book.PriceLevelUpdate{}, false, err
		}
		r.lastSeenID = event.FinalID
		return update, true, nil
	}
	return book.PriceLevelUpdate{}, false, newUpdateIDGapError(r.lastSeenID, event.FirstID, event.FinalID)
}
