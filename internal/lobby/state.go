package lobby

import (
	"math/rand/v2"
	"slices"
	"time"

	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/store"
	"github.com/google/uuid"
)

const Capacity = 10

type Phase string

const (
	PhaseFilling     Phase = "filling"
	PhaseCaptainVote Phase = "captain_vote"
	PhaseSwapWindow  Phase = "captain_swap_window"
	PhaseDrafting    Phase = "drafting"
	PhaseMapVote     Phase = "map_vote"
	PhaseReady       Phase = "ready"
	PhaseReported    Phase = "reported"
)

type Settings struct {
	MapPool            []string
	CaptainVoteTimeout time.Duration
	SwapWindowTimeout  time.Duration
	PickTimeout        time.Duration
	MapVoteTimeout     time.Duration
	PersistTimeout     time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		MapPool:            slices.Clone(engine.DefaultMapPool),
		CaptainVoteTimeout: 20 * time.Second,
		SwapWindowTimeout:  30 * time.Second,
		PickTimeout:        30 * time.Second,
		MapVoteTimeout:     20 * time.Second,
		PersistTimeout:     10 * time.Second,
	}
}

type SwapRequest struct {
	Requester engine.Participant `json:"requester"`
	Responder engine.Participant `json:"responder"`
}

// timerKey identifies one bounded wait. A fire whose key no longer matches
// the state is stale.
type timerKey struct {
	phase  Phase
	cursor int
	cycle  string
}

// State is the match-formation machine for one queue. It does no I/O and is
// not safe for concurrent use; Queue owns it from a single goroutine.
type State struct {
	queueID  int
	settings Settings
	rng      *rand.Rand

	phase    Phase
	roster   []engine.Participant
	captains []engine.Participant

	captainVote *engine.VotingSession
	mapVote     *engine.VotingSession
	draft       *engine.DraftController
	lastResult  *engine.VoteResult

	swap     *SwapRequest
	swapUsed bool

	cycleKey       string
	chosenMap      string
	awaitingCommit bool
	committing     bool
	reporting      bool
	matchID        int64
	matchReported  bool
	points         map[string]int
}

func NewState(queueID int, settings Settings, rng *rand.Rand) *State {
	return &State{
		queueID:  queueID,
		settings: settings,
		rng:      rng,
		phase:    PhaseFilling,
	}
}

func (s *State) Phase() Phase                 { return s.phase }
func (s *State) MatchID() int64               { return s.matchID }
func (s *State) CycleKey() string             { return s.cycleKey }
func (s *State) Roster() []engine.Participant { return slices.Clone(s.roster) }

// AddPlayer appends p to the roster. The tenth join starts a new match cycle.
func (s *State) AddPlayer(p engine.Participant) error {
	if engine.ContainsParticipant(s.roster, p.ID) {
		return engine.ErrAlreadyQueued
	}
	if len(s.roster) >= Capacity {
		return engine.ErrQueueFull
	}
	if s.phase != PhaseFilling {
		return engine.ErrWrongPhase
	}
	if len(s.roster) == Capacity-1 && s.reporting {
		return engine.ErrCommitPending
	}
	s.roster = append(s.roster, p)
	if len(s.roster) == Capacity {
		s.startCycle()
	}
	return nil
}

// RemovePlayer drops id from a filling roster. Absent ids are a no-op.
func (s *State) RemovePlayer(id string) (bool, error) {
	if s.phase != PhaseFilling {
		return false, engine.ErrWrongPhase
	}
	i := slices.IndexFunc(s.roster, func(p engine.Participant) bool { return p.ID == id })
	if i < 0 {
		return false, nil
	}
	s.roster = slices.Delete(s.roster, i, i+1)
	return true, nil
}

func (s *State) startCycle() {
	s.cycleKey = uuid.NewString()
	s.matchID = 0
	s.chosenMap = ""
	s.matchReported = false
	s.swapUsed = false
	s.lastResult = nil
	s.points = nil
	s.captainVote = engine.NewCaptainVote(s.roster, s.settings.CaptainVoteTimeout)
	s.phase = PhaseCaptainVote
}

func (s *State) session(kind engine.SessionKind) (*engine.VotingSession, error) {
	switch kind {
	case engine.SessionCaptains:
		if s.phase != PhaseCaptainVote {
			return nil, engine.ErrWrongPhase
		}
		return s.captainVote, nil
	case engine.SessionMap:
		if s.phase != PhaseMapVote {
			return nil, engine.ErrWrongPhase
		}
		return s.mapVote, nil
	default:
		return nil, engine.ErrUnknownSession
	}
}

// CastVote records a ballot in the open session of kind. The returned bool
// reports whether every eligible voter has now voted.
func (s *State) CastVote(kind engine.SessionKind, voterID, candidate string) (engine.Tally, bool, error) {
	vs, err := s.session(kind)
	if err != nil {
		return nil, false, err
	}
	tally, err := vs.Cast(voterID, candidate)
	if err != nil {
		return nil, false, err
	}
	return tally, vs.Complete(), nil
}

func (s *State) ResolveCaptainVote() (engine.VoteResult, error) {
	if s.phase != PhaseCaptainVote {
		return engine.VoteResult{}, engine.ErrWrongPhase
	}
	captains, res, err := s.captainVote.ResolveCaptains(s.rng)
	if err != nil {
		return res, err
	}
	s.captains = captains[:]
	s.lastResult = &res
	s.phase = PhaseSwapWindow
	return res, nil
}

func (s *State) captainIndex(id string) int {
	return slices.IndexFunc(s.captains, func(p engine.Participant) bool { return p.ID == id })
}

// RequestSwap asks the other captain to let the requester hand the captaincy
// to a random non-captain.
func (s *State) RequestSwap(captainID string) error {
	if s.phase != PhaseSwapWindow {
		return engine.ErrWrongPhase
	}
	i := s.captainIndex(captainID)
	if i < 0 {
		return engine.ErrNotCaptain
	}
	if s.swapUsed {
		return engine.ErrSwapUsed
	}
	if s.swap != nil {
		return engine.ErrSwapPending
	}
	s.swap = &SwapRequest{Requester: s.captains[i], Responder: s.captains[1-i]}
	return nil
}

// AnswerSwap settles a pending request. On accept the replacement takes the
// requester's team slot and is returned.
func (s *State) AnswerSwap(responderID string, accept bool) (engine.Participant, error) {
	if s.phase != PhaseSwapWindow {
		return engine.Participant{}, engine.ErrWrongPhase
	}
	if s.swap == nil {
		return engine.Participant{}, engine.ErrNoSwapPending
	}
	if s.swap.Responder.ID != responderID {
		return engine.Participant{}, engine.ErrNotResponder
	}
	req := s.swap
	s.swap = nil
	if !accept {
		return engine.Participant{}, nil
	}
	others := engine.Without(s.roster, s.captains...)
	replacement := others[s.rng.IntN(len(others))]
	s.captains[s.captainIndex(req.Requester.ID)] = replacement
	s.swapUsed = true
	return replacement, nil
}

// Continue ends the swap window and starts the draft.
func (s *State) Continue(captainID string) error {
	if s.phase != PhaseSwapWindow {
		return engine.ErrWrongPhase
	}
	if s.captainIndex(captainID) < 0 {
		return engine.ErrNotCaptain
	}
	s.startDraft()
	return nil
}

func (s *State) startDraft() {
	s.swap = nil
	s.draft = engine.NewDraft(s.captains[0], s.captains[1], engine.Without(s.roster, s.captains...))
	s.phase = PhaseDrafting
	if s.draft.Done() {
		s.startMapVote()
	}
}

func (s *State) Pick(captainID string, poolIndex int) (engine.Participant, error) {
	if s.phase != PhaseDrafting {
		return engine.Participant{}, engine.ErrWrongPhase
	}
	p, err := s.draft.Pick(captainID, poolIndex)
	if err != nil {
		return p, err
	}
	if s.draft.Done() {
		s.startMapVote()
	}
	return p, nil
}

func (s *State) autoPick() (engine.Participant, error) {
	p, err := s.draft.AutoPick(s.rng)
	if err != nil {
		return p, err
	}
	if s.draft.Done() {
		s.startMapVote()
	}
	return p, nil
}

func (s *State) startMapVote() {
	s.mapVote = engine.NewMapVote(s.roster, s.settings.MapPool, s.settings.MapVoteTimeout)
	s.phase = PhaseMapVote
}

// ResolveMapVote fixes the map. The queue stays in MapVote until the match
// record is written.
func (s *State) ResolveMapVote() (string, engine.VoteResult, error) {
	if s.phase != PhaseMapVote {
		return "", engine.VoteResult{}, engine.ErrWrongPhase
	}
	m, res, err := s.mapVote.ResolveMap(s.rng)
	if err != nil {
		return "", res, err
	}
	s.chosenMap = m
	s.lastResult = &res
	s.awaitingCommit = true
	return m, res, nil
}

// NeedsCommit reports whether a resolved map is waiting for its match record
// and no write is in flight.
func (s *State) NeedsCommit() bool { return s.awaitingCommit && !s.committing }

// BeginCommit marks the match write as in flight and returns what to write.
func (s *State) BeginCommit() (store.NewMatch, error) {
	if s.phase != PhaseMapVote || !s.awaitingCommit {
		return store.NewMatch{}, engine.ErrWrongPhase
	}
	if s.committing {
		return store.NewMatch{}, engine.ErrCommitPending
	}
	s.committing = true
	return store.NewMatch{
		CycleKey: s.cycleKey,
		QueueID:  s.queueID,
		CaptainA: s.captains[0],
		CaptainB: s.captains[1],
		Map:      s.chosenMap,
		TeamA:    s.draft.TeamA(),
		TeamB:    s.draft.TeamB(),
	}, nil
}

func (s *State) CommitSucceeded(matchID int64) {
	s.committing = false
	s.awaitingCommit = false
	s.matchID = matchID
	s.phase = PhaseReady
}

// CommitFailed leaves the queue in MapVote with the map held for a retry.
func (s *State) CommitFailed() { s.committing = false }

// BeginReport validates a winner report and marks it in flight.
func (s *State) BeginReport(team int) (int64, engine.Team, error) {
	if s.matchID == 0 {
		return 0, 0, engine.ErrNoActiveMatch
	}
	if s.matchReported {
		return 0, 0, engine.ErrAlreadyReported
	}
	t := engine.Team(team)
	if !t.Valid() {
		return 0, 0, engine.ErrInvalidTeam
	}
	if s.reporting {
		return 0, 0, engine.ErrCommitPending
	}
	s.reporting = true
	return s.matchID, t, nil
}

// ReportSucceeded records the winner. From Ready the queue moves to Reported
// and the caller is expected to follow with ResetAfterReport.
func (s *State) ReportSucceeded() {
	s.reporting = false
	s.matchReported = true
	if s.phase == PhaseReady {
		s.phase = PhaseReported
	}
}

func (s *State) ReportFailed() { s.reporting = false }

func (s *State) ResetAfterReport() {
	if s.phase == PhaseReported {
		s.clear()
	}
}

// Reset discards the current cycle in any phase. A created match survives as
// residue so it can still be reported.
func (s *State) Reset() error {
	if s.committing || s.reporting {
		return engine.ErrCommitPending
	}
	s.clear()
	if s.matchID == 0 {
		s.chosenMap = ""
		s.matchReported = false
		s.cycleKey = ""
	}
	return nil
}

// clear returns to Filling, keeping matchID, chosenMap and matchReported.
func (s *State) clear() {
	s.phase = PhaseFilling
	s.roster = nil
	s.captains = nil
	s.captainVote = nil
	s.mapVote = nil
	s.draft = nil
	s.lastResult = nil
	s.swap = nil
	s.swapUsed = false
	s.awaitingCommit = false
	s.points = nil
}

// SetPoints attaches display points for the current cycle's players.
func (s *State) SetPoints(cycle string, points map[string]int) bool {
	if cycle != s.cycleKey || (s.phase != PhaseMapVote && s.phase != PhaseReady) {
		return false
	}
	s.points = points
	return true
}

func (s *State) timerKey() (timerKey, time.Duration, bool) {
	k := timerKey{phase: s.phase, cycle: s.cycleKey}
	switch s.phase {
	case PhaseCaptainVote:
		return k, s.settings.CaptainVoteTimeout, true
	case PhaseSwapWindow:
		return k, s.settings.SwapWindowTimeout, true
	case PhaseDrafting:
		k.cursor = s.draft.Cursor()
		return k, s.settings.PickTimeout, true
	case PhaseMapVote:
		if s.mapVote.Resolved() {
			return timerKey{}, 0, false
		}
		return k, s.settings.MapVoteTimeout, true
	default:
		return timerKey{}, 0, false
	}
}

// Expire applies the default outcome of the bounded wait identified by key.
func (s *State) Expire(key timerKey) error {
	cur, _, ok := s.timerKey()
	if !ok || cur != key {
		return errStaleTimer
	}
	switch s.phase {
	case PhaseCaptainVote:
		_, err := s.ResolveCaptainVote()
		return err
	case PhaseSwapWindow:
		s.startDraft()
		return nil
	case PhaseDrafting:
		_, err := s.autoPick()
		return err
	case PhaseMapVote:
		_, _, err := s.ResolveMapVote()
		return err
	}
	return errStaleTimer
}
