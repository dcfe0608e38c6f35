package types

// QueueStatus is the coarse label shown in queue listings.
type QueueStatus string

const (
	StatusEmpty         QueueStatus = "empty"
	StatusWaiting       QueueStatus = "waiting_for_players"
	StatusFull          QueueStatus = "full"
	StatusTeamSelection QueueStatus = "team_selection"
	StatusInProgress    QueueStatus = "match_in_progress"
	StatusReported      QueueStatus = "reported"
)

// QueueSummary is one row of GET /queues.
type QueueSummary struct {
	Queue     int         `json:"queue"`
	Status    QueueStatus `json:"status"`
	Phase     string      `json:"phase"`
	Players   int         `json:"players"`
	Capacity  int         `json:"capacity"`
	ChosenMap string      `json:"chosen_map,omitempty"`
	MatchID   int64       `json:"match_id,omitempty"`
}
