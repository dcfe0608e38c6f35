package store

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflicting write")
)

// NewMatch is everything written when a map vote resolves. CycleKey is unique
// per match cycle so a retried write never inserts twice.
type NewMatch struct {
	CycleKey string
	QueueID  int
	CaptainA engine.Participant
	CaptainB engine.Participant
	Map      string
	TeamA    []engine.Participant
	TeamB    []engine.Participant
}

type PlayerRecord struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Points        int       `json:"points"`
	MatchesPlayed int       `json:"matches_played"`
	Wins          int       `json:"wins"`
	CreatedAt     time.Time `json:"created_at"`
}

type MatchRecord struct {
	ID        int64              `json:"id"`
	QueueID   int                `json:"queue"`
	CaptainA  engine.Participant `json:"captain_a"`
	CaptainB  engine.Participant `json:"captain_b"`
	Map       string             `json:"map"`
	Winner    engine.Team        `json:"winner,omitempty"` // 0 until reported
	CreatedAt time.Time          `json:"created_at"`
}

type MatchDetails struct {
	MatchRecord
	TeamA []engine.Participant `json:"team_a"`
	TeamB []engine.Participant `json:"team_b"`
}

// PlayerMatch is one match seen from a player's side.
type PlayerMatch struct {
	MatchRecord
	Team engine.Team `json:"team"`
}

func (m PlayerMatch) Won() bool { return m.Winner != 0 && m.Winner == m.Team }

// PlayerDelta increments a player's counters, creating the player if absent.
// Name refreshes the stored display name when non-empty.
type PlayerDelta struct {
	Player  engine.Participant
	Points  int
	Matches int
	Wins    int
}

type WinnerReport struct {
	MatchID int64
	Winner  engine.Team
	Deltas  []PlayerDelta
}

// Store is the persistent record of players and matches.
//
// ReportWinner is atomic: the winner and every delta land together or not at
// all. Reporting the same winner again is a no-op; a different winner fails
// with ErrConflict.
type Store interface {
	CreateMatch(ctx context.Context, m NewMatch) (int64, error)
	ReportWinner(ctx context.Context, r WinnerReport) error
	UpsertPlayerPoints(ctx context.Context, d PlayerDelta) error
	GetPlayer(ctx context.Context, id string) (PlayerRecord, error)
	PlayerPoints(ctx context.Context, ids []string) (map[string]int, error)
	Leaderboard(ctx context.Context, limit int) ([]PlayerRecord, error)
	MatchesByQueue(ctx context.Context, queueID, limit int) ([]MatchRecord, error)
	MatchDetails(ctx context.Context, matchID int64) (MatchDetails, error)
	PlayerMatches(ctx context.Context, playerID string, limit int) ([]PlayerMatch, error)
	Ping(ctx context.Context) error
	Close() error
}
