package lobby

import (
	"context"
	"time"

	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/store"
)

// Recorder persists match records. Both calls may block; the queue runs them
// off its own goroutine.
type Recorder interface {
	CreateMatch(ctx context.Context, m store.NewMatch) (int64, error)
	ReportWinner(ctx context.Context, matchID int64, team engine.Team) error
}

// PointsReader supplies current point totals for display.
type PointsReader interface {
	Points(ctx context.Context, ids []string) (map[string]int, error)
}

// Notifier receives structured queue events. Notify is called from the queue
// goroutine and must not block.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

type EventType string

const (
	EventPhaseChanged   EventType = "phase_changed"
	EventMatchCreated   EventType = "match_created"
	EventCommitFailed   EventType = "commit_failed"
	EventWinnerReported EventType = "winner_reported"
)

type Event struct {
	Type     EventType `json:"type"`
	Queue    int       `json:"queue"`
	From     Phase     `json:"from,omitempty"`
	To       Phase     `json:"to,omitempty"`
	Snapshot Snapshot  `json:"snapshot"`
	At       time.Time `json:"at"`
}
