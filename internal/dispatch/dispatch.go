// Package dispatch turns platform messages into queue operations.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/lobby"
	"github.com/DoyleJ11/queue-draft-backend/internal/metrics"
	"github.com/DoyleJ11/queue-draft-backend/pkg/types"
	"go.uber.org/zap"
)

// ErrInvalidMessage marks input that could not be turned into a command.
var ErrInvalidMessage = errors.New("invalid message")

type Source string

const (
	SourceHTTP   Source = "http"
	SourceWS     Source = "ws"
	SourcePubSub Source = "pubsub"
)

// Registry finds or starts the queue a message targets.
type Registry interface {
	GetOrCreate(ctx context.Context, id int) (*lobby.Queue, error)
}

// Authorizer is the platform's admin predicate.
type Authorizer interface {
	IsAdmin(participantID string) bool
}

// AdminSet authorizes a fixed list of participant ids.
type AdminSet map[string]struct{}

func NewAdminSet(ids []string) AdminSet {
	s := make(AdminSet, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s AdminSet) IsAdmin(id string) bool {
	_, ok := s[id]
	return ok
}

type Dispatcher struct {
	reg    Registry
	admins Authorizer
	log    *zap.Logger
}

func New(reg Registry, admins Authorizer, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if admins == nil {
		admins = AdminSet{}
	}
	return &Dispatcher{reg: reg, admins: admins, log: log}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, fmt.Sprintf(format, args...))
}

// Command validates msg and converts it. The bool reports whether the
// operation needs an admin.
func Command(msg types.ClientMessage) (lobby.Command, bool, error) {
	if msg.ParticipantID == "" {
		return lobby.Command{}, false, invalid("participant_id is required")
	}
	cmd := lobby.Command{Actor: engine.Participant{ID: msg.ParticipantID, Name: msg.ParticipantName}}
	admin := false

	switch msg.Type {
	case types.MsgJoin:
		cmd.Op = lobby.OpJoin
	case types.MsgLeave:
		cmd.Op = lobby.OpLeave
	case types.MsgVote:
		cmd.Op = lobby.OpVote
		cmd.Session = engine.SessionKind(msg.Session)
		if !cmd.Session.Valid() {
			return lobby.Command{}, false, engine.ErrUnknownSession
		}
		if msg.Candidate == "" {
			return lobby.Command{}, false, invalid("candidate is required")
		}
		cmd.Candidate = msg.Candidate
	case types.MsgPick:
		cmd.Op = lobby.OpPick
		if msg.PoolIndex == nil {
			return lobby.Command{}, false, invalid("pool_index is required")
		}
		cmd.PoolIndex = *msg.PoolIndex
	case types.MsgRequestSwap:
		cmd.Op = lobby.OpRequestSwap
	case types.MsgAnswerSwap:
		cmd.Op = lobby.OpAnswerSwap
		cmd.Accept = msg.Accept
	case types.MsgContinue:
		cmd.Op = lobby.OpContinue
	case types.MsgReportWinner:
		cmd.Op = lobby.OpReportWinner
		// An unreadable team stays 0; the queue reports ErrInvalidTeam only
		// after the match checks.
		if team, err := engine.ParseTeam(msg.Team); err == nil {
			cmd.Team = int(team)
		}
		admin = true
	case types.MsgRetryCommit:
		cmd.Op = lobby.OpRetryCommit
		admin = true
	case types.MsgReset:
		cmd.Op = lobby.OpReset
		admin = true
	default:
		return lobby.Command{}, false, invalid("unknown message type %q", msg.Type)
	}
	return cmd, admin, nil
}

// Handle applies msg to its queue and returns the queue's answer.
func (d *Dispatcher) Handle(ctx context.Context, src Source, msg types.ClientMessage) (lobby.Result, error) {
	metrics.EventsReceived.WithLabelValues(string(src), msg.Type).Inc()

	cmd, admin, err := Command(msg)
	if err != nil {
		return lobby.Result{}, err
	}
	if admin && !d.admins.IsAdmin(cmd.Actor.ID) {
		d.log.Warn("admin operation refused",
			zap.String("op", string(cmd.Op)),
			zap.String("participant", cmd.Actor.ID),
			zap.Int("queue", msg.Queue),
		)
		return lobby.Result{}, engine.ErrNotAuthorized
	}
	q, err := d.reg.GetOrCreate(ctx, msg.Queue)
	if err != nil {
		return lobby.Result{}, err
	}
	return q.Do(ctx, cmd)
}

// ErrorBody describes err for a client.
func ErrorBody(err error) *types.ErrorBody {
	if err == nil {
		return nil
	}
	kind, code := engine.KindOf(err).String(), engine.CodeOf(err)
	if errors.Is(err, ErrInvalidMessage) {
		kind = "invalid_message"
		if code == "internal" {
			code = "invalid_message"
		}
	}
	return &types.ErrorBody{Kind: kind, Code: code, Message: err.Error()}
}

// ResultMessage encodes the answer to one client message.
func ResultMessage(queue int, res lobby.Result, err error) types.ServerMessage {
	if err != nil {
		return types.ServerMessage{Type: types.MsgError, Queue: queue, Error: ErrorBody(err)}
	}
	return SnapshotMessage(types.MsgResult, res.Snapshot)
}

// SnapshotMessage wraps a snapshot as typ.
func SnapshotMessage(typ string, snap lobby.Snapshot) types.ServerMessage {
	raw, _ := json.Marshal(snap)
	return types.ServerMessage{Type: typ, Queue: snap.Queue, Version: snap.Version, State: raw}
}
