// Package stats answers the read-only questions about players and matches.
package stats

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
	TopMapCount  = 3
)

// Cache holds leaderboard pages between winner reports. Pages are stamped
// with the generation read before the store query; Invalidate advances it.
type Cache interface {
	Generation(ctx context.Context) (int64, error)
	Leaderboard(ctx context.Context, gen int64, limit int) ([]store.PlayerRecord, bool, error)
	SetLeaderboard(ctx context.Context, gen int64, limit int, recs []store.PlayerRecord) error
	Invalidate(ctx context.Context) error
}

type PlayerStats struct {
	ID            string  `json:"id"`
	Name          string  `json:"name,omitempty"`
	Points        int     `json:"points"`
	MatchesPlayed int     `json:"matches_played"`
	Wins          int     `json:"wins"`
	WinRate       float64 `json:"win_rate"`
	// Persisted is false for a player who has never been part of a match.
	Persisted bool `json:"persisted"`
}

type MapCount struct {
	Map   string `json:"map"`
	Count int    `json:"count"`
}

type QueueHistory struct {
	Queue     int                 `json:"queue"`
	Matches   []store.MatchRecord `json:"matches"`
	TeamAWins int                 `json:"team_a_wins"`
	TeamBWins int                 `json:"team_b_wins"`
	TopMaps   []MapCount          `json:"top_maps"`
}

type Profile struct {
	Stats  PlayerStats         `json:"stats"`
	Recent []store.PlayerMatch `json:"recent"`
}

type Query struct {
	store store.Store
	cache Cache
	log   *zap.Logger
}

// New returns a Query over s. cache may be nil.
func New(s store.Store, cache Cache, log *zap.Logger) *Query {
	if log == nil {
		log = zap.NewNop()
	}
	return &Query{store: s, cache: cache, log: log}
}

func clampLimit(limit int) int {
	if limit < 1 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", engine.ErrPersistence, op, err)
}

// Leaderboard returns players by points descending; equal points keep
// creation order.
func (q *Query) Leaderboard(ctx context.Context, limit int) ([]store.PlayerRecord, error) {
	limit = clampLimit(limit)
	cache := q.cache
	var gen int64
	if cache != nil {
		var err error
		if gen, err = cache.Generation(ctx); err != nil {
			q.log.Warn("leaderboard cache generation read failed", zap.Error(err))
			cache = nil
		}
	}
	if cache != nil {
		recs, ok, err := cache.Leaderboard(ctx, gen, limit)
		switch {
		case err != nil:
			q.log.Warn("leaderboard cache read failed", zap.Error(err))
		case ok:
			return recs, nil
		}
	}
	recs, err := q.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, persistence("leaderboard", err)
	}
	if recs == nil {
		recs = []store.PlayerRecord{}
	}
	if cache != nil {
		if err := cache.SetLeaderboard(ctx, gen, limit, recs); err != nil {
			q.log.Warn("leaderboard cache write failed", zap.Error(err))
		}
	}
	return recs, nil
}

// PlayerStats returns the player's counters, or zeroes for an unknown id.
// Querying never creates a player.
func (q *Query) PlayerStats(ctx context.Context, id string) (PlayerStats, error) {
	rec, err := q.store.GetPlayer(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return PlayerStats{ID: id}, nil
	case err != nil:
		return PlayerStats{}, persistence("get player", err)
	}
	out := PlayerStats{
		ID:            rec.ID,
		Name:          rec.Name,
		Points:        rec.Points,
		MatchesPlayed: rec.MatchesPlayed,
		Wins:          rec.Wins,
		Persisted:     true,
	}
	if rec.MatchesPlayed > 0 {
		out.WinRate = float64(rec.Wins) / float64(rec.MatchesPlayed)
	}
	return out, nil
}

// QueueHistory returns the newest matches of a queue with aggregates over
// exactly that window.
func (q *Query) QueueHistory(ctx context.Context, queueID, limit int) (QueueHistory, error) {
	matches, err := q.store.MatchesByQueue(ctx, queueID, clampLimit(limit))
	if err != nil {
		return QueueHistory{}, persistence("queue history", err)
	}
	h := QueueHistory{Queue: queueID, Matches: matches, TopMaps: TopMaps(matches, TopMapCount)}
	if h.Matches == nil {
		h.Matches = []store.MatchRecord{}
	}
	for _, m := range matches {
		switch m.Winner {
		case engine.TeamA:
			h.TeamAWins++
		case engine.TeamB:
			h.TeamBWins++
		}
	}
	return h, nil
}

// TopMaps counts maps in matches and returns the n most played. Equal
// counts keep the order in which maps first appear in matches.
func TopMaps(matches []store.MatchRecord, n int) []MapCount {
	var counts []MapCount
	index := make(map[string]int)
	for _, m := range matches {
		i, ok := index[m.Map]
		if !ok {
			i = len(counts)
			index[m.Map] = i
			counts = append(counts, MapCount{Map: m.Map})
		}
		counts[i].Count++
	}
	slices.SortStableFunc(counts, func(a, b MapCount) int { return cmp.Compare(b.Count, a.Count) })
	if len(counts) > n {
		counts = counts[:n]
	}
	if counts == nil {
		counts = []MapCount{}
	}
	return counts
}

func (q *Query) MatchDetails(ctx context.Context, matchID int64) (store.MatchDetails, error) {
	d, err := q.store.MatchDetails(ctx, matchID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return store.MatchDetails{}, err
	case err != nil:
		return store.MatchDetails{}, persistence("match details", err)
	}
	return d, nil
}

func (q *Query) PlayerHistory(ctx context.Context, id string, limit int) ([]store.PlayerMatch, error) {
	ms, err := q.store.PlayerMatches(ctx, id, clampLimit(limit))
	if err != nil {
		return nil, persistence("player history", err)
	}
	if ms == nil {
		ms = []store.PlayerMatch{}
	}
	return ms, nil
}

// Profile loads stats and recent matches concurrently.
func (q *Query) Profile(ctx context.Context, id string, limit int) (Profile, error) {
	var p Profile
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		p.Stats, err = q.PlayerStats(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		p.Recent, err = q.PlayerHistory(gctx, id, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Points returns current totals for display; unknown ids read as 0.
func (q *Query) Points(ctx context.Context, ids []string) (map[string]int, error) {
	pts, err := q.store.PlayerPoints(ctx, ids)
	if err != nil {
		return nil, persistence("player points", err)
	}
	return pts, nil
}

// Invalidate drops cached leaderboards after a winner report.
func (q *Query) Invalidate(ctx context.Context) error {
	if q.cache == nil {
		return nil
	}
	return q.cache.Invalidate(ctx)
}
