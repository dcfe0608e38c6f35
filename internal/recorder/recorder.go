package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/metrics"
	"github.com/DoyleJ11/queue-draft-backend/internal/store"
	"go.uber.org/zap"
)

// WinPoints is awarded to every member of the winning team.
const WinPoints = 20

// Invalidator drops cached read models after a write.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Recorder turns finished matches into store writes.
type Recorder struct {
	store store.Store
	cache Invalidator
	log   *zap.Logger
}

func New(s store.Store, cache Invalidator, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: s, cache: cache, log: log}
}

func observe(op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.PersistDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

// persistence wraps a store failure so callers see engine.KindPersistence
// and the cause.
func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", engine.ErrPersistence, op, err)
}

// CreateMatch writes the match row, both rosters and any missing players.
// Retrying with the same cycle key returns the existing match id.
func (r *Recorder) CreateMatch(ctx context.Context, m store.NewMatch) (id int64, err error) {
	start := time.Now()
	defer func() { observe("create_match", start, err) }()

	if m.CycleKey == "" {
		return 0, fmt.Errorf("recorder: create match without cycle key")
	}
	id, err = r.store.CreateMatch(ctx, m)
	if err != nil {
		r.log.Error("create match failed", zap.Int("queue", m.QueueID), zap.String("cycle", m.CycleKey), zap.Error(err))
		return 0, persistence("create match", err)
	}
	r.log.Info("match recorded",
		zap.Int64("match", id),
		zap.Int("queue", m.QueueID),
		zap.String("map", m.Map),
	)
	return id, nil
}

// ReportWinner stores the winner and awards points: every player gets a
// match played, winners also get WinPoints and a win. Repeating the report
// with the recorded team is a no-op returning nil so a retried write after a
// lost reply is safe; a different team fails with ErrAlreadyReported. The
// queue rejects any second report before it reaches the recorder.
func (r *Recorder) ReportWinner(ctx context.Context, matchID int64, team engine.Team) (err error) {
	start := time.Now()
	defer func() { observe("report_winner", start, err) }()

	if !team.Valid() {
		return engine.ErrInvalidTeam
	}
	details, err := r.store.MatchDetails(ctx, matchID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return engine.ErrNoActiveMatch
	case err != nil:
		return persistence("load match", err)
	}

	deltas := Deltas(details, team)
	err = r.store.ReportWinner(ctx, store.WinnerReport{MatchID: matchID, Winner: team, Deltas: deltas})
	switch {
	case errors.Is(err, store.ErrConflict):
		return engine.ErrAlreadyReported
	case errors.Is(err, store.ErrNotFound):
		return engine.ErrNoActiveMatch
	case err != nil:
		r.log.Error("report winner failed", zap.Int64("match", matchID), zap.Error(err))
		return persistence("report winner", err)
	}

	if details.Winner == 0 {
		metrics.PointsAwarded.Add(float64(WinPoints * len(winners(details, team))))
	}
	if r.cache != nil {
		if err := r.cache.Invalidate(ctx); err != nil {
			r.log.Warn("stats cache invalidation failed", zap.Error(err))
		}
	}
	r.log.Info("winner recorded", zap.Int64("match", matchID), zap.Stringer("team", team))
	return nil
}

func winners(d store.MatchDetails, team engine.Team) []engine.Participant {
	if team == engine.TeamA {
		return d.TeamA
	}
	return d.TeamB
}

// Deltas derives the per-player counter updates for a reported match.
func Deltas(d store.MatchDetails, winner engine.Team) []store.PlayerDelta {
	out := make([]store.PlayerDelta, 0, len(d.TeamA)+len(d.TeamB))
	add := func(team engine.Team, ps []engine.Participant) {
		for _, p := range ps {
			delta := store.PlayerDelta{Player: p, Matches: 1}
			if team == winner {
				delta.Points = WinPoints
				delta.Wins = 1
			}
			out = append(out, delta)
		}
	}
	add(engine.TeamA, d.TeamA)
	add(engine.TeamB, d.TeamB)
	return out
}
