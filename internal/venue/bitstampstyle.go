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
	bitstampWSHost       = "ws.bitstamp.net"
	bitstampRESTHost     = "www.bitstamp.net"
	bitstampReconnectMin = 5 * time.Second
)

type bitstampSubscribeMessage struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

type bitstampFrame struct {
	Event string              `json:"event"`
	Data  bitstampDiffPayload `json:"data"`
}

type bitstampDiffPayload struct {
	Timestamp      string      `json:"timestamp"`
	Microtimestamp string      `json:"microtimestamp"`
	Bids           [][2]string `json:"bids"`
	Asks           [][2]string `json:"asks"`
}

type bitstampSnapshot struct {
	Timestamp      string      `json:"timestamp"`
	Microtimestamp string      `json:"microtimestamp"`
	Bids           [][2]string `json:"bids"`
	Asks           [][2]string `json:"asks"`
}

// BitstampStyleAdaptor implements the microtimestamp reconciliation
// protocol of spec.md §4.3 against Venue B's wire shapes (spec.md §6).
type BitstampStyleAdaptor struct {
	pair         Pair
	depth        int
	streamBuffer int
	logger       zerolog.Logger

	wsHost     string
	restHost   string
	httpClient *http.Client
}

// NewBitstampStyleAdaptor constructs an adaptor for pair. streamBuffer
// bounds the internal socket-to-handler channel capacity.
func NewBitstampStyleAdaptor(pair Pair, depth, streamBuffer int, logger zerolog.Logger) *BitstampStyleAdaptor {
	return &BitstampStyleAdaptor{
		pair:         pair,
		depth:        depth,
		streamBuffer: streamBuffer,
		logger:       logger,
		wsHost:       bitstampWSHost,
		restHost:     bitstampRESTHost,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Run drives the stream task and the handler task for the lifetime of ctx.
func (a *BitstampStyleAdaptor) Run(ctx context.Context, out chan<- book.PriceLevelUpdate) error {
	frames := make(chan rawFrame, a.streamBuffer)
	go a.streamTask(ctx, frames)
	return a.handlerTask(ctx, frames, out)
}

func (a *BitstampStyleAdaptor) channelName() string {
	return fmt.Sprintf("diff_order_book_%s", a.pair.Lower())
}

func (a *BitstampStyleAdaptor) streamTask(ctx context.Context, frames chan<- rawFrame) {
	url := fmt.Sprintf("wss://%s/", a.wsHost)
	backoff := bitstampReconnectMin

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			a.logger.Warn().Err(err).Dur("backoff", backoff).Msg("bitstamp dial failed")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			continue
		}
		backoff = bitstampReconnectMin

		conn.SetPingHandler(func(appData string) error {
			return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
		})

		sub := bitstampSubscribeMessage{
			Event: "bts:subscribe",
			Data:  map[string]interface{}{"channel": a.channelName()},
		}
		if err := conn.WriteJSON(sub); err != nil {
			a.logger.Warn().Err(err).Msg("bitstamp subscribe failed")
			conn.Close()
			if !sleepOrDone(ctx, backoff) {
				return
			}
			continue
		}

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
		a.logger.Info().Msg("bitstamp socket closed, reconnecting")
		if !sleepOrDone(ctx, bitstampReconnectMin) {
			return
		}
	}
}

func (a *BitstampStyleAdaptor) readUntilClosed(ctx context.Context, conn *websocket.Conn, frames chan<- rawFrame) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				a.logger.Warn().Err(err).Msg("bitstamp read error")
			}
			return
		}
		select {
		case frames <- rawFrame{data: data}:
		default:
			a.logger.Warn().Msg("bitstamp frame dropped, handler backlogged")
		}
	}
}

func (a *BitstampStyleAdaptor) handlerTask(ctx context.Context, frames <-chan rawFrame, out chan<- book.PriceLevelUpdate) error {
	reconciler := &bitstampReconciler{}

	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-frames:
			if frame.sentinel {
				snap, err := a.fetchSnapshot(ctx)
				if err != nil {
					a.logger.Warn().Err(err).Msg("bitstamp snapshot fetch failed")
					continue
				}
				update, err := reconciler.applySnapshot(snap)
				if err != nil {
					a.logger.Warn().Err(err).Msg("bitstamp snapshot malformed")
					continue
				}
				if !trySend(ctx, out, update) {
					return nil
				}
				continue
			}

			var wire bitstampFrame
			if err := json.Unmarshal(frame.data, &wire); err != nil {
				a.logger.Warn().Err(err).Msg("bitstamp frame parse failed")
				continue
			}
			switch wire.Event {
			case "data":
				update, accepted, err := reconciler.applyDelta(wire.Data)
				if err != nil {
					return err
				}
				if !accepted {
					continue
				}
				if !trySend(ctx, out, update) {
					return nil
				}
			case "bts:subscription_succeeded", "bts:request_reconnect", "":
				// No book content to reconcile.
			default:
				a.logger.Debug().Str("event", wire.Event).Msg("bitstamp unhandled event")
			}
		}
	}
}

func (a *BitstampStyleAdaptor) fetchSnapshot(ctx context.Context) (bitstampSnapshot, error) {
	url := fmt.Sprintf("https://%s/api/v2/order_book/%s", a.restHost, a.pair.Lower())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return bitstampSnapshot{}, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return bitstampSnapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return bitstampSnapshot{}, fmt.Errorf("bitstamp snapshot: status %d: %s", resp.StatusCode, string(body))
	}

	var snap bitstampSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return bitstampSnapshot{}, fmt.Errorf("bitstamp snapshot decode: %w", err)
	}
	return snap, nil
}

// bitstampReconciler implements spec.md §4.3's microtimestamp
// reconciliation rule: a delta is accepted iff its microtimestamp is
// strictly greater than the previous accepted one.
type bitstampReconciler struct {
	lastMicrotimestamp int64
	haveSnapshot       bool
}

func (r *bitstampReconciler) applySnapshot(snap bitstampSnapshot) (book.PriceLevelUpdate, error) {
	update, err := levelsFromPairs(snap.Bids, snap.Asks, string(Bitstamp))
	if err != nil {
		return book.PriceLevelUpdate{}, err
	}
	ts, err := parseMicrotimestamp(snap.Microtimestamp)
	if err != nil {
		return book.PriceLevelUpdate{}, err
	}
	r.lastMicrotimestamp = ts
	r.haveSnapshot = true
	return update, nil
}

func (r *bitstampReconciler) applyDelta(payload bitstampDiffPayload) (book.PriceLevelUpdate, bool, error) {
	if !r.haveSnapshot {
		return book.PriceLevelUpdate{}, false, nil
	}
	ts, err := parseMicrotimestamp(payload.Microtimestamp)
	if err != nil {
		return book.PriceLevelUpdate{}, false, nil
	}
	if ts <= r.lastMicrotimestamp {
		return book.PriceLevelUpdate{}, false, nil
	}
	update, err := levelsFromPairs(payload.Bids, payload.Asks, string(Bitstamp))
	if err != nil {
		return book.PriceLevelUpdate{}, false, err
	}
	r.lastMicrotimestamp = ts
	return update, true, nil
}

func parseMicrotimestamp(raw string) (int64, error) {
	var ts int64
	_, err := fmt.Sscanf(raw, "%d", &ts)
	if err != nil {
		return 0, fmt.Errorf("bitstamp: invalid microtimestamp %q: %w", raw, err)
	}
	return ts, nil
}
