// Package notify delivers queue events to the outside world.
package notify

import (
	"context"
	"encoding/json"

	"github.com/DoyleJ11/queue-draft-backend/internal/lobby"
	"github.com/DoyleJ11/queue-draft-backend/pkg/types"
	"go.uber.org/zap"
)

// Log writes every event to a logger.
type Log struct{ log *zap.Logger }

func NewLog(log *zap.Logger) *Log { return &Log{log: log} }

func (l *Log) Notify(_ context.Context, ev lobby.Event) {
	l.log.Info("queue event",
		zap.String("event", string(ev.Type)),
		zap.Int("queue", ev.Queue),
		zap.String("from", string(ev.From)),
		zap.String("to", string(ev.To)),
		zap.Int("version", ev.Snapshot.Version),
		zap.Int64("match", ev.Snapshot.MatchID),
	)
}

// Fanout forwards each event to every notifier in order.
type Fanout []lobby.Notifier

func (f Fanout) Notify(ctx context.Context, ev lobby.Event) {
	for _, n := range f {
		n.Notify(ctx, ev)
	}
}

var messageTypes = map[lobby.EventType]string{
	lobby.EventPhaseChanged:   types.MsgPhaseChanged,
	lobby.EventMatchCreated:   types.MsgMatchCreated,
	lobby.EventCommitFailed:   types.MsgCommitFailed,
	lobby.EventWinnerReported: types.MsgWinnerReported,
}

// Message renders ev in the wire format shared with platform adapters.
func Message(ev lobby.Event) (types.ServerMessage, error) {
	state, err := json.Marshal(ev.Snapshot)
	if err != nil {
		return types.ServerMessage{}, err
	}
	typ, ok := messageTypes[ev.Type]
	if !ok {
		typ = string(ev.Type)
	}
	return types.ServerMessage{
		Type:    typ,
		Queue:   ev.Queue,
		Version: ev.Snapshot.Version,
		From:    string(ev.From),
		To:      string(ev.To),
		State:   state,
	}, nil
}
