package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/store"
)

type member struct {
	playerID string
	team     engine.Team
	position int
}

type match struct {
	store.MatchRecord
	cycleKey string
	members  []member
}

type player struct {
	store.PlayerRecord
	seq int
}

// Store keeps everything in process memory. It honours the same contract as
// the postgres store and backs development runs and tests.
type Store struct {
	mu      sync.RWMutex
	now     func() time.Time
	players map[string]*player
	matches []*match
	byCycle map[string]int64
	seq     int
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:     time.Now,
		players: make(map[string]*player),
		byCycle: make(map[string]int64),
	}
}

func (s *Store) upsert(d store.PlayerDelta) *player {
	p, ok := s.players[d.Player.ID]
	if !ok {
		s.seq++
		p = &player{PlayerRecord: store.PlayerRecord{ID: d.Player.ID, CreatedAt: s.now().UTC()}, seq: s.seq}
		s.players[d.Player.ID] = p
	}
	if d.Player.Name != "" {
		p.Name = d.Player.Name
	}
	p.Points += d.Points
	p.MatchesPlayed += d.Matches
	p.Wins += d.Wins
	return p
}

func (s *Store) CreateMatch(ctx context.Context, m store.NewMatch) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byCycle[m.CycleKey]; ok && m.CycleKey != "" {
		return id, nil
	}
	rec := &match{
		MatchRecord: store.MatchRecord{
			ID:        int64(len(s.matches) + 1),
			QueueID:   m.QueueID,
			CaptainA:  m.CaptainA,
			CaptainB:  m.CaptainB,
			Map:       m.Map,
			CreatedAt: s.now().UTC(),
		},
		cycleKey: m.CycleKey,
	}
	for i, p := range m.TeamA {
		s.upsert(store.PlayerDelta{Player: p})
		rec.members = append(rec.members, member{playerID: p.ID, team: engine.TeamA, position: i})
	}
	for i, p := range m.TeamB {
		s.upsert(store.PlayerDelta{Player: p})
		rec.members = append(rec.members, member{playerID: p.ID, team: engine.TeamB, position: i})
	}
	s.matches = append(s.matches, rec)
	if m.CycleKey != "" {
		s.byCycle[m.CycleKey] = rec.ID
	}
	return rec.ID, nil
}

func (s *Store) find(id int64) (*match, bool) {
	if id < 1 || id > int64(len(s.matches)) {
		return nil, false
	}
	return s.matches[id-1], true
}

func (s *Store) ReportWinner(ctx context.Context, r store.WinnerReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.find(r.MatchID)
	if !ok {
		return store.ErrNotFound
	}
	switch m.Winner {
	case r.Winner:
		return nil
	case 0:
	default:
		return store.ErrConflict
	}
	m.Winner = r.Winner
	for _, d := range r.Deltas {
		s.upsert(d)
	}
	return nil
}

func (s *Store) UpsertPlayerPoints(ctx context.Context, d store.PlayerDelta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(d)
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, id string) (store.PlayerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return store.PlayerRecord{}, store.ErrNotFound
	}
	return p.PlayerRecord, nil
}

func (s *Store) PlayerPoints(ctx context.Context, ids []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		if p, ok := s.players[id]; ok {
			out[id] = p.Points
		} else {
			out[id] = 0
		}
	}
	return out, nil
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]store.PlayerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*player, 0, len(s.players))
	for _, p := range s.players {
		all = append(all, p)
	}
	slices.SortFunc(all, func(a, b *player) int {
		if a.Points != b.Points {
			return b.Points - a.Points
		}
		return a.seq - b.seq
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]store.PlayerRecord, len(all))
	for i, p := range all {
		out[i] = p.PlayerRecord
	}
	return out, nil
}

func (s *Store) MatchesByQueue(ctx context.Context, queueID, limit int) ([]store.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.MatchRecord
	for i := len(s.matches) - 1; i >= 0; i-- {
		if s.matches[i].QueueID != queueID {
			continue
		}
		out = append(out, s.matches[i].MatchRecord)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) participant(id string) engine.Participant {
	p := engine.Participant{ID: id}
	if rec, ok := s.players[id]; ok {
		p.Name = rec.Name
	}
	return p
}

func (s *Store) MatchDetails(ctx context.Context, matchID int64) (store.MatchDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.find(matchID)
	if !ok {
		return store.MatchDetails{}, store.ErrNotFound
	}
	members := slices.Clone(m.members)
	slices.SortFunc(members, func(a, b member) int { return a.position - b.position })
	d := store.MatchDetails{MatchRecord: m.MatchRecord}
	for _, mb := range members {
		if mb.team == engine.TeamA {
			d.TeamA = append(d.TeamA, s.participant(mb.playerID))
		} else {
			d.TeamB = append(d.TeamB, s.participant(mb.playerID))
		}
	}
	return d, nil
}

func (s *Store) PlayerMatches(ctx context.Context, playerID string, limit int) ([]store.PlayerMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.PlayerMatch
	for i := len(s.matches) - 1; i >= 0; i-- {
		m := s.matches[i]
		j := slices.IndexFunc(m.members, func(mb member) bool { return mb.playerID == playerID })
		if j < 0 {
			continue
		}
		out = append(out, store.PlayerMatch{MatchRecord: m.MatchRecord, Team: m.members[j].team})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }
