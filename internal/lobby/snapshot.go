package lobby

import (
	"maps"
	"time"

	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/pkg/types"
)

// Snapshot is everything a platform adapter needs to render a queue.
type Snapshot struct {
	Queue         int                  `json:"queue"`
	Version       int                  `json:"version"`
	Phase         Phase                `json:"phase"`
	Status        types.QueueStatus    `json:"status"`
	Roster        []engine.Participant `json:"roster"`
	Captains      []engine.Participant `json:"captains,omitempty"`
	TeamA         []engine.Participant `json:"team_a,omitempty"`
	TeamB         []engine.Participant `json:"team_b,omitempty"`
	Pool          []engine.Participant `json:"pool,omitempty"`
	Picker        *engine.Participant  `json:"picker,omitempty"`
	PickNumber    int                  `json:"pick_number,omitempty"`
	AutoAssigned  *engine.Participant  `json:"auto_assigned,omitempty"`
	Vote          *VoteView            `json:"vote,omitempty"`
	LastResult    *ResultView          `json:"last_result,omitempty"`
	Swap          *SwapView            `json:"swap,omitempty"`
	ChosenMap     string               `json:"chosen_map,omitempty"`
	MatchID       int64                `json:"match_id,omitempty"`
	MatchReported bool                 `json:"match_reported"`
	CommitPending bool                 `json:"commit_pending"`
	Deadline      *time.Time           `json:"deadline,omitempty"`
	Points        map[string]int       `json:"points,omitempty"`
}

type VoteView struct {
	Kind       engine.SessionKind `json:"kind"`
	Candidates []string           `json:"candidates"`
	Tally      engine.Tally       `json:"tally"`
	Voted      int                `json:"voted"`
	Eligible   int                `json:"eligible"`
}

type ResultView struct {
	Kind     engine.SessionKind `json:"kind"`
	Winners  []string           `json:"winners"`
	Fallback bool               `json:"fallback"`
}

type SwapView struct {
	Used    bool         `json:"used"`
	Pending *SwapRequest `json:"pending,omitempty"`
}

// Summary condenses a snapshot into a listing row.
func (s Snapshot) Summary() types.QueueSummary {
	return types.QueueSummary{
		Queue:     s.Queue,
		Status:    s.Status,
		Phase:     string(s.Phase),
		Players:   len(s.Roster),
		Capacity:  Capacity,
		ChosenMap: s.ChosenMap,
		MatchID:   s.MatchID,
	}
}

func statusOf(phase Phase, players int) types.QueueStatus {
	switch phase {
	case PhaseFilling:
		if players == 0 {
			return types.StatusEmpty
		}
		return types.StatusWaiting
	case PhaseCaptainVote:
		return types.StatusFull
	case PhaseSwapWindow, PhaseDrafting, PhaseMapVote:
		return types.StatusTeamSelection
	case PhaseReady:
		return types.StatusInProgress
	default:
		return types.StatusReported
	}
}

func voteView(vs *engine.VotingSession) *VoteView {
	if vs == nil || vs.Resolved() {
		return nil
	}
	return &VoteView{
		Kind:       vs.Kind(),
		Candidates: vs.Candidates(),
		Tally:      vs.Tally(),
		Voted:      vs.Voted(),
		Eligible:   vs.Eligible(),
	}
}

// Snapshot renders the state. version is stamped by the owning Queue.
func (s *State) Snapshot(version int) Snapshot {
	snap := Snapshot{
		Queue:         s.queueID,
		Version:       version,
		Phase:         s.phase,
		Status:        statusOf(s.phase, len(s.roster)),
		Roster:        s.Roster(),
		ChosenMap:     s.chosenMap,
		MatchID:       s.matchID,
		MatchReported: s.matchReported,
		CommitPending: s.awaitingCommit,
	}
	if snap.Roster == nil {
		snap.Roster = []engine.Participant{}
	}
	if len(s.captains) == 2 {
		snap.Captains = []engine.Participant{s.captains[0], s.captains[1]}
	}
	if s.lastResult != nil {
		snap.LastResult = &ResultView{Kind: s.lastResult.Kind, Winners: s.lastResult.Winners, Fallback: s.lastResult.Fallback}
	}

	switch s.phase {
	case PhaseCaptainVote:
		snap.Vote = voteView(s.captainVote)
	case PhaseSwapWindow:
		snap.Swap = &SwapView{Used: s.swapUsed}
		if s.swap != nil {
			req := *s.swap
			snap.Swap.Pending = &req
		}
	case PhaseMapVote:
		snap.Vote = voteView(s.mapVote)
	}

	if s.draft != nil {
		snap.TeamA = s.draft.TeamA()
		snap.TeamB = s.draft.TeamB()
		if s.phase == PhaseDrafting {
			snap.Pool = s.draft.Pool()
			if p, ok := s.draft.CurrentPicker(); ok {
				snap.Picker = &p
				snap.PickNumber = s.draft.Cursor() + 3
			}
		}
		if p, ok := s.draft.AutoAssigned(); ok {
			snap.AutoAssigned = &p
		}
	}
	if len(s.points) > 0 {
		snap.Points = maps.Clone(s.points)
	}
	return snap
}
