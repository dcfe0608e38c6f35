// Package storetest holds the behaviour every store.Store must share.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Players returns n participants with ids prefix1..prefixN.
func Players(prefix string, n int) []engine.Participant {
	out := make([]engine.Participant, n)
	for i := range out {
		out[i] = engine.Participant{ID: fmt.Sprintf("%s%d", prefix, i+1), Name: fmt.Sprintf("%s player %d", prefix, i+1)}
	}
	return out
}

// Match builds a 5v5 match from ten participants, captains first.
func Match(cycle string, queue int, ps []engine.Participant, mapName string) store.NewMatch {
	return store.NewMatch{
		CycleKey: cycle,
		QueueID:  queue,
		CaptainA: ps[0],
		CaptainB: ps[5],
		Map:      mapName,
		TeamA:    ps[:5],
		TeamB:    ps[5:10],
	}
}

// Deltas awards the winning side the way the recorder does.
func Deltas(m store.NewMatch, winner engine.Team) []store.PlayerDelta {
	var out []store.PlayerDelta
	for _, p := range m.TeamA {
		out = append(out, delta(p, winner == engine.TeamA))
	}
	for _, p := range m.TeamB {
		out = append(out, delta(p, winner == engine.TeamB))
	}
	return out
}

func delta(p engine.Participant, won bool) store.PlayerDelta {
	if won {
		return store.PlayerDelta{Player: p, Points: 20, Matches: 1, Wins: 1}
	}
	return store.PlayerDelta{Player: p, Matches: 1}
}

// Run exercises s against the store contract. Each subtest uses its own
// participant prefix and queue number so a shared database is fine.
func Run(t *testing.T, s store.Store) {
	ctx := context.Background()

	t.Run("CreateMatch_IdempotentPerCycle", func(t *testing.T) {
		ps := Players("idem", 10)
		m := Match("cycle-idem", 101, ps, "Plaza")

		id1, err := s.CreateMatch(ctx, m)
		require.NoError(t, err)
		id2, err := s.CreateMatch(ctx, m)
		require.NoError(t, err)
		assert.Equal(t, id1, id2)

		history, err := s.MatchesByQueue(ctx, 101, 10)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("CreateMatch_MaterialisesPlayers", func(t *testing.T) {
		ps := Players("lazy", 10)
		_, err := s.GetPlayer(ctx, ps[0].ID)
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.CreateMatch(ctx, Match("cycle-lazy", 102, ps, "Raid"))
		require.NoError(t, err)

		p, err := s.GetPlayer(ctx, ps[0].ID)
		require.NoError(t, err)
		assert.Equal(t, ps[0].Name, p.Name)
		assert.Zero(t, p.Points)
		assert.Zero(t, p.MatchesPlayed)
	})

	t.Run("ReportWinner_AwardsAndIsIdempotent", func(t *testing.T) {
		ps := Players("rw", 10)
		m := Match("cycle-rw", 103, ps, "Canals")
		id, err := s.CreateMatch(ctx, m)
		require.NoError(t, err)

		report := store.WinnerReport{MatchID: id, Winner: engine.TeamA, Deltas: Deltas(m, engine.TeamA)}
		require.NoError(t, s.ReportWinner(ctx, report))
		require.NoError(t, s.ReportWinner(ctx, report), "same winner again is a no-op")

		winner, err := s.GetPlayer(ctx, ps[1].ID)
		require.NoError(t, err)
		assert.Equal(t, 20, winner.Points)
		assert.Equal(t, 1, winner.MatchesPlayed)
		assert.Equal(t, 1, winner.Wins)

		loser, err := s.GetPlayer(ctx, ps[7].ID)
		require.NoError(t, err)
		assert.Equal(t, 0, loser.Points)
		assert.Equal(t, 1, loser.MatchesPlayed)
		assert.Equal(t, 0, loser.Wins)

		err = s.ReportWinner(ctx, store.WinnerReport{MatchID: id, Winner: engine.TeamB, Deltas: Deltas(m, engine.TeamB)})
		assert.ErrorIs(t, err, store.ErrConflict)

		again, err := s.GetPlayer(ctx, ps[1].ID)
		require.NoError(t, err)
		assert.Equal(t, 20, again.Points, "conflicting report must not touch points")
	})

	t.Run("ReportWinner_UnknownMatch", func(t *testing.T) {
		err := s.ReportWinner(ctx, store.WinnerReport{MatchID: 987654, Winner: engine.TeamA})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("MatchDetails_KeepsDraftOrder", func(t *testing.T) {
		ps := Players("det", 10)
		m := Match("cycle-det", 104, ps, "Legacy")
		id, err := s.CreateMatch(ctx, m)
		require.NoError(t, err)

		d, err := s.MatchDetails(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, m.TeamA, d.TeamA)
		assert.Equal(t, m.TeamB, d.TeamB)
		assert.Equal(t, ps[0], d.CaptainA)
		assert.Equal(t, "Legacy", d.Map)
		assert.Zero(t, d.Winner)

		_, err = s.MatchDetails(ctx, 987654)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("MatchesByQueue_NewestFirstWithLimit", func(t *testing.T) {
		ps := Players("hist", 10)
		var ids []int64
		for i, mp := range []string{"Plaza", "Raid", "Bureau"} {
			id, err := s.CreateMatch(ctx, Match(fmt.Sprintf("cycle-hist-%d", i), 105, ps, mp))
			require.NoError(t, err)
			ids = append(ids, id)
		}
		got, err := s.MatchesByQueue(ctx, 105, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, ids[2], got[0].ID)
		assert.Equal(t, ids[1], got[1].ID)
	})

	t.Run("PlayerMatches_CarryTeam", func(t *testing.T) {
		ps := Players("pm", 10)
		m := Match("cycle-pm", 106, ps, "Village")
		id, err := s.CreateMatch(ctx, m)
		require.NoError(t, err)
		require.NoError(t, s.ReportWinner(ctx, store.WinnerReport{MatchID: id, Winner: engine.TeamB, Deltas: Deltas(m, engine.TeamB)}))

		got, err := s.PlayerMatches(ctx, ps[6].ID, 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, engine.TeamB, got[0].Team)
		assert.True(t, got[0].Won())
	})

	t.Run("UpsertPlayerPoints_RefreshesName", func(t *testing.T) {
		p := engine.Participant{ID: "ups-1", Name: "old"}
		require.NoError(t, s.UpsertPlayerPoints(ctx, store.PlayerDelta{Player: p, Points: 5}))
		p.Name = "new"
		require.NoError(t, s.UpsertPlayerPoints(ctx, store.PlayerDelta{Player: p, Points: 3}))

		got, err := s.GetPlayer(ctx, "ups-1")
		require.NoError(t, err)
		assert.Equal(t, "new", got.Name)
		assert.Equal(t, 8, got.Points)

		pts, err := s.PlayerPoints(ctx, []string{"ups-1", "ups-missing"})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"ups-1": 8, "ups-missing": 0}, pts)
	})

	t.Run("Leaderboard_PointsThenCreationOrder", func(t *testing.T) {
		for _, id := range []string{"lb-first", "lb-second", "lb-third"} {
			require.NoError(t, s.UpsertPlayerPoints(ctx, store.PlayerDelta{Player: engine.Participant{ID: id}, Points: 10000}))
		}
		require.NoError(t, s.UpsertPlayerPoints(ctx, store.PlayerDelta{Player: engine.Participant{ID: "lb-second"}, Points: 1}))

		top, err := s.Leaderboard(ctx, 3)
		require.NoError(t, err)
		require.Len(t, top, 3)
		assert.Equal(t, "lb-second", top[0].ID)
		assert.Equal(t, "lb-first", top[1].ID)
		assert.Equal(t, "lb-third", top[2].ID)
	})
}
