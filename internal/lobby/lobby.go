package lobby

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrClosed     = errors.New("lobby: queue closed")
	errStaleTimer = errors.New("lobby: stale timer")
)

type Msg interface{ isLobbyMsg() }

type Op string

const (
	OpJoin         Op = "join"
	OpLeave        Op = "leave"
	OpVote         Op = "vote"
	OpPick         Op = "pick"
	OpRequestSwap  Op = "request_swap"
	OpAnswerSwap   Op = "answer_swap"
	OpContinue     Op = "continue"
	OpReportWinner Op = "report_winner"
	OpRetryCommit  Op = "retry_commit"
	OpReset        Op = "reset"
)

// Command is one platform event. Actor is the participant who caused it.
type Command struct {
	Op        Op
	Actor     engine.Participant
	Session   engine.SessionKind
	Candidate string
	PoolIndex int
	Accept    bool
	Team      int
}

type Result struct {
	Snapshot Snapshot
	Tally    engine.Tally
	Picked   *engine.Participant
	Err      error
}

type FromClient struct {
	Cmd   Command
	Reply chan Result // buffered; nil when the caller does not wait
}

func (FromClient) isLobbyMsg() {}

type Subscribe struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Subscribe) isLobbyMsg() {}

type Unsubscribe struct{ ClientID string }

func (Unsubscribe) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type timerFired struct {
	gen uint64
	key timerKey
}

func (timerFired) isLobbyMsg() {}

type commitDone struct {
	cycle   string
	matchID int64
	err     error
	reply   chan Result
}

func (commitDone) isLobbyMsg() {}

type reportDone struct {
	matchID int64
	team    engine.Team
	err     error
	reply   chan Result
}

func (reportDone) isLobbyMsg() {}

type pointsLoaded struct {
	cycle  string
	points map[string]int
}

func (pointsLoaded) isLobbyMsg() {}

type View struct {
	Version    int
	NumClients int
	Snapshot   Snapshot
}

type Deps struct {
	Recorder Recorder
	Points   PointsReader
	Notifier Notifier
	Logger   *zap.Logger
	Rand     *rand.Rand
}

// Queue serialises every operation on one queue through its inbox.
type Queue struct {
	id       int
	inbox    chan Msg
	state    *State
	settings Settings
	version  int
	clients  map[string]chan Snapshot

	recorder Recorder
	points   PointsReader
	notifier Notifier
	log      *zap.Logger

	timer    *time.Timer
	timerGen uint64
	armed    timerKey
	deadline time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewQueue(parent context.Context, id int, settings Settings, deps Deps) *Queue {
	ctx, cancel := context.WithCancel(parent)
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &Queue{
		id:       id,
		inbox:    make(chan Msg, 64),
		state:    NewState(id, settings, rng),
		settings: settings,
		clients:  make(map[string]chan Snapshot),
		recorder: deps.Recorder,
		points:   deps.Points,
		notifier: deps.Notifier,
		log:      logger.With(zap.Int("queue", id)),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go q.loop()
	return q
}

func (q *Queue) ID() int { return q.id }

// Inbox exposes the raw message channel for tests and adapters.
func (q *Queue) Inbox() chan<- Msg { return q.inbox }

// Done is closed once the queue goroutine has exited.
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) loop() {
	defer close(q.done)
	for {
		select {
		case <-q.ctx.Done():
			q.shutdown()
			return

		case m := <-q.inbox:
			switch msg := m.(type) {
			case Subscribe:
				q.clients[msg.ClientID] = msg.Outbox
				q.send(msg.ClientID, msg.Outbox, q.snapshot())

			case Unsubscribe:
				delete(q.clients, msg.ClientID)

			case FromClient:
				q.handle(msg)

			case GetState:
				msg.Reply <- View{
					Version:    q.version,
					NumClients: len(q.clients),
					Snapshot:   q.snapshot(),
				}

			case timerFired:
				q.onTimer(msg)

			case commitDone:
				q.onCommitDone(msg)

			case reportDone:
				q.onReportDone(msg)

			case pointsLoaded:
				if q.state.SetPoints(msg.cycle, msg.points) {
					q.version++
					q.broadcast(q.snapshot())
				}

			case Shutdown:
				q.shutdown()
				return
			}
		}
	}
}

func (q *Queue) handle(m FromClient) {
	before := q.state.Phase()
	res, changed, held, err := q.apply(m)
	if held {
		return
	}
	q.count(m.Cmd.Op, err)
	if err != nil {
		q.log.Debug("operation rejected",
			zap.String("op", string(m.Cmd.Op)),
			zap.String("participant", m.Cmd.Actor.ID),
			zap.String("code", engine.CodeOf(err)),
		)
	}
	if changed {
		q.afterChange(before)
	}
	res.Snapshot = q.snapshot()
	res.Err = err
	reply(m.Reply, res)
}

// apply runs one command against the state. held means the reply is
// delivered later, once a persistence call returns.
func (q *Queue) apply(m FromClient) (res Result, changed, held bool, err error) {
	cmd := m.Cmd
	switch cmd.Op {
	case OpJoin:
		err = q.state.AddPlayer(cmd.Actor)
		changed = err == nil

	case OpLeave:
		changed, err = q.state.RemovePlayer(cmd.Actor.ID)

	case OpVote:
		var complete bool
		res.Tally, complete, err = q.state.CastVote(cmd.Session, cmd.Actor.ID, cmd.Candidate)
		if err != nil {
			return res, false, false, err
		}
		changed = true
		if complete {
			err = q.resolveVote(cmd.Session)
		}

	case OpPick:
		var p engine.Participant
		p, err = q.state.Pick(cmd.Actor.ID, cmd.PoolIndex)
		if err == nil {
			res.Picked = &p
			changed = true
		}

	case OpRequestSwap:
		err = q.state.RequestSwap(cmd.Actor.ID)
		changed = err == nil

	case OpAnswerSwap:
		var p engine.Participant
		p, err = q.state.AnswerSwap(cmd.Actor.ID, cmd.Accept)
		if err == nil {
			if cmd.Accept {
				res.Picked = &p
			}
			changed = true
		}

	case OpContinue:
		err = q.state.Continue(cmd.Actor.ID)
		changed = err == nil

	case OpReportWinner:
		var (
			matchID int64
			team    engine.Team
		)
		matchID, team, err = q.state.BeginReport(cmd.Team)
		if err != nil {
			return res, false, false, err
		}
		q.startReport(matchID, team, m.Reply)
		return res, false, true, nil

	case OpRetryCommit:
		if err = q.startCommit(m.Reply); err != nil {
			return res, false, false, err
		}
		return res, false, true, nil

	case OpReset:
		err = q.state.Reset()
		changed = err == nil
		if changed {
			q.log.Info("queue reset", zap.String("by", cmd.Actor.ID))
		}

	default:
		err = fmt.Errorf("lobby: unknown op %q", cmd.Op)
	}
	return res, changed, false, err
}

func (q *Queue) resolveVote(kind engine.SessionKind) error {
	switch kind {
	case engine.SessionCaptains:
		res, err := q.state.ResolveCaptainVote()
		if err != nil {
			return err
		}
		q.log.Info("captains chosen", zap.Strings("captains", res.Winners), zap.Bool("fallback", res.Fallback))
	case engine.SessionMap:
		m, res, err := q.state.ResolveMapVote()
		if err != nil {
			return err
		}
		q.log.Info("map chosen", zap.String("map", m), zap.Bool("fallback", res.Fallback))
		return q.startCommit(nil)
	}
	return nil
}

func (q *Queue) afterChange(before Phase) {
	q.version++
	q.rearm()
	after := q.state.Phase()
	metrics.RosterSize.WithLabelValues(strconv.Itoa(q.id)).Set(float64(len(q.state.roster)))
	snap := q.snapshot()
	if after != before {
		metrics.PhaseTransitions.WithLabelValues(string(before), string(after)).Inc()
		q.log.Info("phase changed", zap.String("from", string(before)), zap.String("to", string(after)))
		if after == PhaseMapVote {
			q.loadPoints()
		}
		q.notify(Event{Type: EventPhaseChanged, From: before, To: after, Snapshot: snap})
	}
	q.broadcast(snap)
}

func (q *Queue) startCommit(replyTo chan Result) error {
	if q.recorder == nil {
		return fmt.Errorf("%w: no recorder configured", engine.ErrPersistence)
	}
	nm, err := q.state.BeginCommit()
	if err != nil {
		return err
	}
	go func() {
		ctx, cancel := context.WithTimeout(q.ctx, q.settings.PersistTimeout)
		defer cancel()
		id, err := q.recorder.CreateMatch(ctx, nm)
		q.post(commitDone{cycle: nm.CycleKey, matchID: id, err: err, reply: replyTo})
	}()
	return nil
}

func (q *Queue) onCommitDone(msg commitDone) {
	before := q.state.Phase()
	if msg.err != nil {
		err := msg.err
		if engine.KindOf(err) == engine.KindUnknown {
			err = fmt.Errorf("%w: create match: %w", engine.ErrPersistence, err)
		}
		q.state.CommitFailed()
		q.count("create_match", err)
		q.log.Error("match write failed; queue held in map vote", zap.String("cycle", msg.cycle), zap.Error(err))
		q.version++
		snap := q.snapshot()
		q.notify(Event{Type: EventCommitFailed, Snapshot: snap})
		q.broadcast(snap)
		reply(msg.reply, Result{Snapshot: snap, Err: err})
		return
	}

	q.state.CommitSucceeded(msg.matchID)
	q.log.Info("match created", zap.Int64("match", msg.matchID))
	q.afterChange(before)
	snap := q.snapshot()
	q.notify(Event{Type: EventMatchCreated, Snapshot: snap})
	reply(msg.reply, Result{Snapshot: snap})
}

func (q *Queue) startReport(matchID int64, team engine.Team, replyTo chan Result) {
	if q.recorder == nil {
		err := fmt.Errorf("%w: no recorder configured", engine.ErrPersistence)
		go q.post(reportDone{matchID: matchID, team: team, err: err, reply: replyTo})
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(q.ctx, q.settings.PersistTimeout)
		defer cancel()
		err := q.recorder.ReportWinner(ctx, matchID, team)
		q.post(reportDone{matchID: matchID, team: team, err: err, reply: replyTo})
	}()
}

func (q *Queue) onReportDone(msg reportDone) {
	if msg.err != nil {
		err := msg.err
		if engine.KindOf(err) == engine.KindUnknown {
			err = fmt.Errorf("%w: report winner: %w", engine.ErrPersistence, err)
		}
		q.state.ReportFailed()
		q.count(OpReportWinner, err)
		q.log.Error("winner report failed", zap.Int64("match", msg.matchID), zap.Error(err))
		reply(msg.reply, Result{Snapshot: q.snapshot(), Err: err})
		return
	}

	q.count(OpReportWinner, nil)
	before := q.state.Phase()
	q.state.ReportSucceeded()
	q.log.Info("winner reported", zap.Int64("match", msg.matchID), zap.Stringer("team", msg.team))
	q.afterChange(before)
	q.notify(Event{Type: EventWinnerReported, Snapshot: q.snapshot()})

	if q.state.Phase() == PhaseReported {
		q.state.ResetAfterReport()
		q.afterChange(PhaseReported)
	}
	reply(msg.reply, Result{Snapshot: q.snapshot()})
}

func (q *Queue) loadPoints() {
	if q.points == nil {
		return
	}
	cycle := q.state.CycleKey()
	ids := make([]string, 0, len(q.state.roster))
	for _, p := range q.state.roster {
		ids = append(ids, p.ID)
	}
	go func() {
		ctx, cancel := context.WithTimeout(q.ctx, q.settings.PersistTimeout)
		defer cancel()
		pts, err := q.points.Points(ctx, ids)
		if err != nil {
			q.log.Warn("team points unavailable", zap.Error(err))
			return
		}
		q.post(pointsLoaded{cycle: cycle, points: pts})
	}()
}

// rearm keeps exactly one timer for the current bounded wait.
func (q *Queue) rearm() {
	key, d, ok := q.state.timerKey()
	if ok && q.timer != nil && key == q.armed {
		return
	}
	q.stopTimer()
	if !ok {
		return
	}
	q.timerGen++
	gen := q.timerGen
	q.armed = key
	q.deadline = time.Now().Add(d)
	q.timer = time.AfterFunc(d, func() { q.post(timerFired{gen: gen, key: key}) })
}

func (q *Queue) stopTimer() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.armed = timerKey{}
	q.deadline = time.Time{}
}

func (q *Queue) onTimer(msg timerFired) {
	if msg.gen != q.timerGen || q.timer == nil {
		q.log.Debug("dropping stale timer", zap.Uint64("gen", msg.gen))
		return
	}
	before := q.state.Phase()
	q.timer = nil
	err := q.state.Expire(msg.key)
	if errors.Is(err, errStaleTimer) {
		q.log.Debug("dropping stale timer", zap.String("phase", string(msg.key.phase)))
		return
	}
	metrics.TimerExpirations.WithLabelValues(string(before)).Inc()
	if err != nil {
		q.log.Error("timeout resolution failed", zap.String("phase", string(before)), zap.Error(err))
	}
	if before == PhaseMapVote && q.state.NeedsCommit() {
		if err := q.startCommit(nil); err != nil {
			q.log.Error("match write not started", zap.Error(err))
		}
	}
	q.afterChange(before)
}

func (q *Queue) snapshot() Snapshot {
	s := q.state.Snapshot(q.version)
	if !q.deadline.IsZero() {
		d := q.deadline
		s.Deadline = &d
	}
	return s
}

func (q *Queue) notify(ev Event) {
	if q.notifier == nil {
		return
	}
	ev.Queue = q.id
	ev.At = time.Now().UTC()
	q.notifier.Notify(q.ctx, ev)
}

func (q *Queue) count(op Op, err error) {
	result := "ok"
	if err != nil {
		result = engine.KindOf(err).String()
	}
	metrics.OperationsTotal.WithLabelValues(string(op), result).Inc()
}

// post delivers an internal message unless the queue is gone.
func (q *Queue) post(m Msg) {
	select {
	case q.inbox <- m:
	case <-q.ctx.Done():
	}
}

func (q *Queue) shutdown() {
	q.stopTimer()
	for id, ch := range q.clients {
		close(ch) // Tell client no more snapshots
		delete(q.clients, id)
	}
	q.cancel()
}

func (q *Queue) send(id string, ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
	default:
		// Client is slow/full - drop them.
		close(ch)
		delete(q.clients, id)
	}
}

func (q *Queue) broadcast(snap Snapshot) {
	for id, ch := range q.clients {
		q.send(id, ch, snap)
	}
}

func reply(ch chan Result, r Result) {
	if ch == nil {
		return
	}
	select {
	case ch <- r:
	default:
	}
}
