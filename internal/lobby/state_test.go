package lobby

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
)

func players(n int) []engine.Participant {
	out := make([]engine.Participant, n)
	for i := range out {
		out[i] = engine.Participant{ID: fmt.Sprintf("P%d", i+1), Name: fmt.Sprintf("Player %d", i+1)}
	}
	return out
}

func newTestState(t *testing.T) *State {
	t.Helper()
	return NewState(1, DefaultSettings(), rand.New(rand.NewPCG(7, 11)))
}

func fill(t *testing.T, s *State) {
	t.Helper()
	for _, p := range players(Capacity) {
		if err := s.AddPlayer(p); err != nil {
			t.Fatalf("AddPlayer(%s): %v", p.ID, err)
		}
	}
}

// electP1P2 fills the roster and resolves a 5/5 captain vote.
func electP1P2(t *testing.T, s *State) {
	t.Helper()
	fill(t, s)
	for i, p := range players(Capacity) {
		cand := "P1"
		if i%2 == 1 {
			cand = "P2"
		}
		if _, _, err := s.CastVote(engine.SessionCaptains, p.ID, cand); err != nil {
			t.Fatalf("vote %s: %v", p.ID, err)
		}
	}
	if _, err := s.ResolveCaptainVote(); err != nil {
		t.Fatalf("ResolveCaptainVote: %v", err)
	}
}

func draftAll(t *testing.T, s *State) {
	t.Helper()
	for s.Phase() == PhaseDrafting {
		p, ok := s.draft.CurrentPicker()
		if !ok {
			t.Fatalf("drafting without a picker")
		}
		if _, err := s.Pick(p.ID, 0); err != nil {
			t.Fatalf("Pick by %s: %v", p.ID, err)
		}
	}
}

func voteMap(t *testing.T, s *State, m string) {
	t.Helper()
	for _, p := range players(Capacity) {
		if _, _, err := s.CastVote(engine.SessionMap, p.ID, m); err != nil {
			t.Fatalf("map vote %s: %v", p.ID, err)
		}
	}
	if _, _, err := s.ResolveMapVote(); err != nil {
		t.Fatalf("ResolveMapVote: %v", err)
	}
}

// toReady drives a fresh state through a whole cycle and commits match 42.
func toReady(t *testing.T, s *State) {
	t.Helper()
	electP1P2(t, s)
	if err := s.Continue("P1"); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	draftAll(t, s)
	voteMap(t, s, "Plaza")
	if _, err := s.BeginCommit(); err != nil {
		t.Fatalf("BeginCommit: %v", err)
	}
	s.CommitSucceeded(42)
}

func TestState_TenthJoinStartsCycle(t *testing.T) {
	s := newTestState(t)
	ps := players(Capacity)
	for _, p := range ps[:Capacity-1] {
		if err := s.AddPlayer(p); err != nil {
			t.Fatalf("AddPlayer: %v", err)
		}
	}
	if s.Phase() != PhaseFilling || s.CycleKey() != "" {
		t.Fatalf("nine players: phase=%s cycle=%q", s.Phase(), s.CycleKey())
	}
	if err := s.AddPlayer(ps[0]); !errors.Is(err, engine.ErrAlreadyQueued) {
		t.Fatalf("duplicate join: want ErrAlreadyQueued, got %v", err)
	}

	if err := s.AddPlayer(ps[9]); err != nil {
		t.Fatalf("tenth join: %v", err)
	}
	if s.Phase() != PhaseCaptainVote {
		t.Fatalf("want captain_vote, got %s", s.Phase())
	}
	if s.CycleKey() == "" {
		t.Fatalf("cycle key not assigned")
	}
	if err := s.AddPlayer(engine.Participant{ID: "P11"}); !errors.Is(err, engine.ErrQueueFull) {
		t.Fatalf("eleventh join: want ErrQueueFull, got %v", err)
	}
	if _, err := s.RemovePlayer("P3"); !errors.Is(err, engine.ErrWrongPhase) {
		t.Fatalf("leave after fill: want ErrWrongPhase, got %v", err)
	}
}

func TestState_RemovePlayer(t *testing.T) {
	s := newTestState(t)
	_ = s.AddPlayer(engine.Participant{ID: "P1"})
	_ = s.AddPlayer(engine.Participant{ID: "P2"})

	removed, err := s.RemovePlayer("P1")
	if err != nil || !removed {
		t.Fatalf("RemovePlayer(P1) = %v, %v", removed, err)
	}
	removed, err = s.RemovePlayer("nobody")
	if err != nil || removed {
		t.Fatalf("RemovePlayer(nobody) = %v, %v; want no-op", removed, err)
	}
	if got := s.Roster(); len(got) != 1 || got[0].ID != "P2" {
		t.Fatalf("roster = %+v", got)
	}
}

func TestState_CaptainVoteOpensSwapWindow(t *testing.T) {
	s := newTestState(t)
	electP1P2(t, s)
	if s.Phase() != PhaseSwapWindow {
		t.Fatalf("want swap window, got %s", s.Phase())
	}
	if s.captainIndex("P1") < 0 || s.captainIndex("P2") < 0 {
		t.Fatalf("captains = %+v; want P1 and P2", s.captains)
	}
	if _, _, err := s.CastVote(engine.SessionCaptains, "P3", "P1"); !errors.Is(err, engine.ErrWrongPhase) {
		t.Fatalf("late captain ballot: want ErrWrongPhase, got %v", err)
	}
}

func TestState_SwapRequestAccepted(t *testing.T) {
	s := newTestState(t)
	electP1P2(t, s)

	if err := s.RequestSwap("P5"); !errors.Is(err, engine.ErrNotCaptain) {
		t.Fatalf("non-captain request: want ErrNotCaptain, got %v", err)
	}
	if _, err := s.AnswerSwap("P2", true); !errors.Is(err, engine.ErrNoSwapPending) {
		t.Fatalf("answer without request: want ErrNoSwapPending, got %v", err)
	}
	if err := s.RequestSwap("P1"); err != nil {
		t.Fatalf("RequestSwap: %v", err)
	}
	if err := s.RequestSwap("P2"); !errors.Is(err, engine.ErrSwapPending) {
		t.Fatalf("second request: want ErrSwapPending, got %v", err)
	}
	if _, err := s.AnswerSwap("P1", true); !errors.Is(err, engine.ErrNotResponder) {
		t.Fatalf("requester answering: want ErrNotResponder, got %v", err)
	}

	replacement, err := s.AnswerSwap("P2", true)
	if err != nil {
		t.Fatalf("AnswerSwap: %v", err)
	}
	if replacement.ID == "P1" || replacement.ID == "P2" {
		t.Fatalf("replacement %s is a captain", replacement.ID)
	}
	if s.captainIndex("P1") >= 0 || s.captainIndex(replacement.ID) < 0 {
		t.Fatalf("captains after swap = %+v", s.captains)
	}
	if err := s.RequestSwap("P2"); !errors.Is(err, engine.ErrSwapUsed) {
		t.Fatalf("request after swap: want ErrSwapUsed, got %v", err)
	}
	if snap := s.Snapshot(0); snap.Swap == nil || !snap.Swap.Used || snap.Swap.Pending != nil {
		t.Fatalf("swap view = %+v", snap.Swap)
	}
}

func TestState_SwapRequestDeclined(t *testing.T) {
	s := newTestState(t)
	electP1P2(t, s)
	if err := s.RequestSwap("P2"); err != nil {
		t.Fatalf("RequestSwap: %v", err)
	}
	if _, err := s.AnswerSwap("P1", false); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if s.captainIndex("P2") < 0 {
		t.Fatalf("decline must keep the captain")
	}
	if err := s.RequestSwap("P2"); err != nil {
		t.Fatalf("a declined swap is not used up: %v", err)
	}
}

func TestState_ContinueDraftsAndOpensMapVote(t *testing.T) {
	s := newTestState(t)
	electP1P2(t, s)
	if err := s.Continue("P7"); !errors.Is(err, engine.ErrNotCaptain) {
		t.Fatalf("Continue by non-captain: want ErrNotCaptain, got %v", err)
	}
	if err := s.Continue("P2"); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if s.Phase() != PhaseDrafting {
		t.Fatalf("want drafting, got %s", s.Phase())
	}
	snap := s.Snapshot(1)
	if snap.Picker == nil || snap.PickNumber != 3 || len(snap.Pool) != 8 {
		t.Fatalf("draft view: picker=%v pick=%d pool=%d", snap.Picker, snap.PickNumber, len(snap.Pool))
	}

	draftAll(t, s)
	if s.Phase() != PhaseMapVote {
		t.Fatalf("want map vote after the draft, got %s", s.Phase())
	}
	snap = s.Snapshot(2)
	if len(snap.TeamA) != 5 || len(snap.TeamB) != 5 {
		t.Fatalf("teams %d/%d", len(snap.TeamA), len(snap.TeamB))
	}
	if snap.AutoAssigned == nil {
		t.Fatalf("last player should be auto-assigned")
	}
	if snap.Vote == nil || snap.Vote.Kind != engine.SessionMap || snap.Status != "team_selection" {
		t.Fatalf("map vote view = %+v status=%s", snap.Vote, snap.Status)
	}
}

func TestState_CommitFailureHoldsMapVote(t *testing.T) {
	s := newTestState(t)
	electP1P2(t, s)
	_ = s.Continue("P1")
	draftAll(t, s)
	voteMap(t, s, "Raid")

	nm, err := s.BeginCommit()
	if err != nil {
		t.Fatalf("BeginCommit: %v", err)
	}
	if nm.Map != "Raid" || nm.CycleKey != s.CycleKey() || len(nm.TeamA) != 5 || len(nm.TeamB) != 5 {
		t.Fatalf("NewMatch = %+v", nm)
	}
	if _, err := s.BeginCommit(); !errors.Is(err, engine.ErrCommitPending) {
		t.Fatalf("double commit: want ErrCommitPending, got %v", err)
	}
	if err := s.Reset(); !errors.Is(err, engine.ErrCommitPending) {
		t.Fatalf("reset during write: want ErrCommitPending, got %v", err)
	}

	s.CommitFailed()
	if s.Phase() != PhaseMapVote || !s.NeedsCommit() {
		t.Fatalf("after failure: phase=%s needsCommit=%v", s.Phase(), s.NeedsCommit())
	}
	if snap := s.Snapshot(0); !snap.CommitPending || snap.ChosenMap != "Raid" {
		t.Fatalf("snapshot must expose the held map: %+v", snap)
	}

	retry, err := s.BeginCommit()
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.CycleKey != nm.CycleKey {
		t.Fatalf("retry changed cycle key %q -> %q", nm.CycleKey, retry.CycleKey)
	}
	s.CommitSucceeded(7)
	if s.Phase() != PhaseReady || s.MatchID() != 7 {
		t.Fatalf("phase=%s match=%d", s.Phase(), s.MatchID())
	}
}

func TestState_ReportWinner(t *testing.T) {
	s := newTestState(t)
	if _, _, err := s.BeginReport(1); !errors.Is(err, engine.ErrNoActiveMatch) {
		t.Fatalf("report without match: want ErrNoActiveMatch, got %v", err)
	}
	toReady(t, s)

	if _, _, err := s.BeginReport(3); !errors.Is(err, engine.ErrInvalidTeam) {
		t.Fatalf("team 3: want ErrInvalidTeam, got %v", err)
	}
	id, team, err := s.BeginReport(2)
	if err != nil || id != 42 || team != engine.TeamB {
		t.Fatalf("BeginReport = %d, %v, %v", id, team, err)
	}
	if _, _, err := s.BeginReport(2); !errors.Is(err, engine.ErrCommitPending) {
		t.Fatalf("concurrent report: want ErrCommitPending, got %v", err)
	}

	s.ReportSucceeded()
	if s.Phase() != PhaseReported {
		t.Fatalf("want reported, got %s", s.Phase())
	}
	s.ResetAfterReport()
	if s.Phase() != PhaseFilling || len(s.Roster()) != 0 {
		t.Fatalf("after report: phase=%s roster=%d", s.Phase(), len(s.Roster()))
	}
	snap := s.Snapshot(0)
	if snap.MatchID != 42 || !snap.MatchReported || snap.ChosenMap != "Plaza" {
		t.Fatalf("residue lost: %+v", snap)
	}
	if _, _, err := s.BeginReport(1); !errors.Is(err, engine.ErrAlreadyReported) {
		t.Fatalf("second report: want ErrAlreadyReported, got %v", err)
	}
}

func TestState_ReportAfterResetKeepsMatch(t *testing.T) {
	s := newTestState(t)
	toReady(t, s)
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if s.Phase() != PhaseFilling || s.MatchID() != 42 {
		t.Fatalf("reset: phase=%s match=%d", s.Phase(), s.MatchID())
	}

	if _, _, err := s.BeginReport(1); err != nil {
		t.Fatalf("report residue: %v", err)
	}
	ps := players(Capacity)
	for _, p := range ps[:Capacity-1] {
		if err := s.AddPlayer(p); err != nil {
			t.Fatalf("AddPlayer: %v", err)
		}
	}
	if err := s.AddPlayer(ps[9]); !errors.Is(err, engine.ErrCommitPending) {
		t.Fatalf("tenth join during report: want ErrCommitPending, got %v", err)
	}
	s.ReportSucceeded()
	if s.Phase() != PhaseFilling {
		t.Fatalf("report from filling must not change phase, got %s", s.Phase())
	}
	if err := s.AddPlayer(ps[9]); err != nil {
		t.Fatalf("tenth join after report: %v", err)
	}
	if s.MatchID() != 0 || s.Snapshot(0).MatchReported {
		t.Fatalf("new cycle must clear residue")
	}
}

func TestState_ResetBeforeMatchClearsCycle(t *testing.T) {
	s := newTestState(t)
	electP1P2(t, s)
	_ = s.Continue("P1")
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if s.Phase() != PhaseFilling || s.CycleKey() != "" || len(s.Roster()) != 0 {
		t.Fatalf("reset left phase=%s cycle=%q roster=%d", s.Phase(), s.CycleKey(), len(s.Roster()))
	}
}

func TestState_Expire(t *testing.T) {
	s := newTestState(t)
	if _, _, ok := s.timerKey(); ok {
		t.Fatalf("filling has no timer")
	}
	fill(t, s)

	key, d, ok := s.timerKey()
	if !ok || d != DefaultSettings().CaptainVoteTimeout {
		t.Fatalf("captain vote timer = %v, %v", d, ok)
	}
	if err := s.Expire(key); err != nil {
		t.Fatalf("expire captain vote: %v", err)
	}
	if s.Phase() != PhaseSwapWindow || len(s.captains) != 2 {
		t.Fatalf("no-vote fallback: phase=%s captains=%d", s.Phase(), len(s.captains))
	}
	if err := s.Expire(key); !errors.Is(err, errStaleTimer) {
		t.Fatalf("old key: want errStaleTimer, got %v", err)
	}

	key, _, _ = s.timerKey()
	if err := s.Expire(key); err != nil {
		t.Fatalf("expire swap window: %v", err)
	}
	if s.Phase() != PhaseDrafting {
		t.Fatalf("want drafting, got %s", s.Phase())
	}

	key, _, _ = s.timerKey()
	picker, _ := s.draft.CurrentPicker()
	if _, err := s.Pick(picker.ID, 0); err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if err := s.Expire(key); !errors.Is(err, errStaleTimer) {
		t.Fatalf("timer from an earlier pick: want errStaleTimer, got %v", err)
	}
	for s.Phase() == PhaseDrafting {
		key, _, _ = s.timerKey()
		if err := s.Expire(key); err != nil {
			t.Fatalf("auto-pick: %v", err)
		}
	}

	key, _, _ = s.timerKey()
	if err := s.Expire(key); err != nil {
		t.Fatalf("expire map vote: %v", err)
	}
	if !s.NeedsCommit() || s.Snapshot(0).ChosenMap == "" {
		t.Fatalf("map vote timeout must choose a map")
	}
	if _, _, ok := s.timerKey(); ok {
		t.Fatalf("resolved map vote keeps no timer")
	}
}

func TestState_SetPointsOnlyForCurrentCycle(t *testing.T) {
	s := newTestState(t)
	electP1P2(t, s)
	_ = s.Continue("P1")
	draftAll(t, s)

	if s.SetPoints("other-cycle", map[string]int{"P1": 40}) {
		t.Fatalf("points from another cycle accepted")
	}
	if !s.SetPoints(s.CycleKey(), map[string]int{"P1": 40}) {
		t.Fatalf("points for the current cycle rejected")
	}
	if got := s.Snapshot(0).Points["P1"]; got != 40 {
		t.Fatalf("points = %d", got)
	}
}
