package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/DoyleJ11/queue-draft-backend/internal/dispatch"
	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/lobby"
	"github.com/DoyleJ11/queue-draft-backend/internal/metrics"
	"github.com/DoyleJ11/queue-draft-backend/pkg/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var errRateLimited = errors.New("too many messages; slow down")

// Registry finds the queue a connection watches.
type Registry interface {
	GetOrCreate(ctx context.Context, id int) (*lobby.Queue, error)
}

type Handler interface {
	Handle(ctx context.Context, src dispatch.Source, msg types.ClientMessage) (lobby.Result, error)
}

type Options struct {
	EventsPerSecond float64
	Burst           int
	ReadTimeout     time.Duration
	OriginPatterns  []string
}

func (o Options) withDefaults() Options {
	if o.EventsPerSecond <= 0 {
		o.EventsPerSecond = 5
	}
	if o.Burst <= 0 {
		o.Burst = 10
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	return o
}

// NewHandler streams snapshots of ?queue=N and applies inbound client
// messages to that queue.
func NewHandler(reg Registry, h Handler, opts Options, log *zap.Logger) http.HandlerFunc {
	opts = opts.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		queueID, err := strconv.Atoi(r.URL.Query().Get("queue"))
		if err != nil {
			http.Error(w, "missing or invalid queue", http.StatusBadRequest)
			return
		}
		q, err := reg.GetOrCreate(r.Context(), queueID)
		if err != nil {
			if engine.KindOf(err) == engine.KindValidation {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		metrics.WSConnections.Inc()
		defer metrics.WSConnections.Dec()

		clientID := uuid.NewString()
		clog := log.With(zap.String("client", clientID), zap.Int("queue", queueID))
		out := make(chan lobby.Snapshot, 8)
		if err := q.Subscribe(clientID, out); err != nil {
			conn.Close(websocket.StatusGoingAway, "queue closed")
			return
		}
		defer q.Unsubscribe(clientID)
		clog.Debug("websocket client connected")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case snap, ok := <-out:
					if !ok {
						// The queue dropped us (slow reader) or shut down.
						conn.Close(websocket.StatusTryAgainLater, "snapshot stream closed")
						return
					}
					write(writeCtx, conn, dispatch.SnapshotMessage(types.MsgStateSnapshot, snap))
				case <-writeCtx.Done():
					return
				}
			}
		}()

		limiter := rate.NewLimiter(rate.Limit(opts.EventsPerSecond), opts.Burst)

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), opts.ReadTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					clog.Debug("websocket read ended", zap.Error(err))
				}
				return
			}

			if !limiter.Allow() {
				write(r.Context(), conn, errorMessage(queueID, "rate_limited", errRateLimited))
				continue
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				write(r.Context(), conn, errorMessage(queueID, "bad_json", err))
				continue
			}
			cm.Queue = queueID

			res, err := h.Handle(r.Context(), dispatch.SourceWS, cm)
			write(r.Context(), conn, dispatch.ResultMessage(queueID, res, err))
		}
	}
}

func errorMessage(queue int, code string, err error) types.ServerMessage {
	return types.ServerMessage{
		Type:  types.MsgError,
		Queue: queue,
		Error: &types.ErrorBody{Kind: "invalid_message", Code: code, Message: err.Error()},
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
