package lobby

import (
	"context"

	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
)

// Do sends cmd and waits for its result. A held operation (winner report,
// commit retry) answers once its write has returned.
func (q *Queue) Do(ctx context.Context, cmd Command) (Result, error) {
	replyTo := make(chan Result, 1)
	select {
	case q.inbox <- FromClient{Cmd: cmd, Reply: replyTo}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-q.done:
		return Result{}, ErrClosed
	}
	select {
	case r := <-replyTo:
		return r, r.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-q.done:
		return Result{}, ErrClosed
	}
}

func (q *Queue) Join(ctx context.Context, p engine.Participant) (Result, error) {
	return q.Do(ctx, Command{Op: OpJoin, Actor: p})
}

func (q *Queue) Leave(ctx context.Context, p engine.Participant) (Result, error) {
	return q.Do(ctx, Command{Op: OpLeave, Actor: p})
}

func (q *Queue) Vote(ctx context.Context, voter engine.Participant, kind engine.SessionKind, candidate string) (Result, error) {
	return q.Do(ctx, Command{Op: OpVote, Actor: voter, Session: kind, Candidate: candidate})
}

func (q *Queue) Pick(ctx context.Context, captain engine.Participant, poolIndex int) (Result, error) {
	return q.Do(ctx, Command{Op: OpPick, Actor: captain, PoolIndex: poolIndex})
}

func (q *Queue) RequestSwap(ctx context.Context, captain engine.Participant) (Result, error) {
	return q.Do(ctx, Command{Op: OpRequestSwap, Actor: captain})
}

func (q *Queue) AnswerSwap(ctx context.Context, captain engine.Participant, accept bool) (Result, error) {
	return q.Do(ctx, Command{Op: OpAnswerSwap, Actor: captain, Accept: accept})
}

func (q *Queue) Continue(ctx context.Context, captain engine.Participant) (Result, error) {
	return q.Do(ctx, Command{Op: OpContinue, Actor: captain})
}

// ReportWinner, RetryCommit and Reset are admin operations; callers check
// authorization before sending them.
func (q *Queue) ReportWinner(ctx context.Context, admin engine.Participant, team int) (Result, error) {
	return q.Do(ctx, Command{Op: OpReportWinner, Actor: admin, Team: team})
}

func (q *Queue) RetryCommit(ctx context.Context, admin engine.Participant) (Result, error) {
	return q.Do(ctx, Command{Op: OpRetryCommit, Actor: admin})
}

func (q *Queue) Reset(ctx context.Context, admin engine.Participant) (Result, error) {
	return q.Do(ctx, Command{Op: OpReset, Actor: admin})
}

func (q *Queue) Snapshot(ctx context.Context) (Snapshot, error) {
	v, err := q.View(ctx)
	return v.Snapshot, err
}

func (q *Queue) View(ctx context.Context) (View, error) {
	replyTo := make(chan View, 1)
	select {
	case q.inbox <- GetState{Reply: replyTo}:
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-q.done:
		return View{}, ErrClosed
	}
	select {
	case v := <-replyTo:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-q.done:
		return View{}, ErrClosed
	}
}

// Subscribe registers outbox for snapshots. The current snapshot is sent
// immediately; a full outbox gets the client dropped and the channel closed.
func (q *Queue) Subscribe(clientID string, outbox chan Snapshot) error {
	select {
	case q.inbox <- Subscribe{ClientID: clientID, Outbox: outbox}:
		return nil
	case <-q.done:
		return ErrClosed
	}
}

func (q *Queue) Unsubscribe(clientID string) {
	select {
	case q.inbox <- Unsubscribe{ClientID: clientID}:
	case <-q.done:
	}
}

// Shutdown stops the queue, cancels its timer and closes subscriber outboxes.
func (q *Queue) Shutdown() {
	select {
	case q.inbox <- Shutdown{}:
	case <-q.done:
	}
	<-q.done
}
