package engine

import (
	"math/rand/v2"
	"slices"
	"time"
)

type CandidateCount struct {
	Candidate string `json:"candidate"`
	Votes     int    `json:"votes"`
}

// Tally lists every candidate in its original order with its current count.
type Tally []CandidateCount

func (t Tally) Total() int {
	n := 0
	for _, c := range t {
		n += c.Votes
	}
	return n
}

type VoteResult struct {
	Kind     SessionKind
	Winners  []string
	Fallback bool
	Tally    Tally
}

// VotingSession collects plurality votes over a fixed candidate set.
// The first ballot of a voter binds; it is not safe for concurrent use.
type VotingSession struct {
	kind       SessionKind
	eligible   []Participant
	candidates []string
	known      map[string]bool
	voters     map[string]bool
	ballots    map[string]string
	deadline   time.Duration
	resolved   bool
}

func NewVotingSession(kind SessionKind, eligible []Participant, candidates []string, deadline time.Duration) *VotingSession {
	s := &VotingSession{
		kind:       kind,
		eligible:   slices.Clone(eligible),
		candidates: slices.Clone(candidates),
		known:      make(map[string]bool, len(candidates)),
		voters:     make(map[string]bool, len(eligible)),
		ballots:    make(map[string]string, len(eligible)),
		deadline:   deadline,
	}
	for _, c := range candidates {
		s.known[c] = true
	}
	for _, p := range eligible {
		s.voters[p.ID] = true
	}
	return s
}

// NewCaptainVote opens a captain election where the roster votes for one of its own members.
func NewCaptainVote(roster []Participant, deadline time.Duration) *VotingSession {
	ids := make([]string, len(roster))
	for i, p := range roster {
		ids[i] = p.ID
	}
	return NewVotingSession(SessionCaptains, roster, ids, deadline)
}

func NewMapVote(roster []Participant, maps []string, deadline time.Duration) *VotingSession {
	return NewVotingSession(SessionMap, roster, maps, deadline)
}

func (s *VotingSession) Kind() SessionKind       { return s.kind }
func (s *VotingSession) Deadline() time.Duration { return s.deadline }
func (s *VotingSession) Candidates() []string    { return slices.Clone(s.candidates) }
func (s *VotingSession) Resolved() bool          { return s.resolved }
func (s *VotingSession) Voted() int              { return len(s.ballots) }
func (s *VotingSession) Eligible() int           { return len(s.voters) }

// Complete reports whether every eligible voter has cast a ballot.
func (s *VotingSession) Complete() bool { return len(s.ballots) >= len(s.voters) }

func (s *VotingSession) HasVoted(voterID string) bool {
	_, ok := s.ballots[voterID]
	return ok
}

func (s *VotingSession) Cast(voterID, candidate string) (Tally, error) {
	if s.resolved {
		return nil, ErrVoteClosed
	}
	if !s.voters[voterID] {
		return nil, ErrNotEligible
	}
	if !s.known[candidate] {
		return nil, ErrUnknownCandidate
	}
	if _, ok := s.ballots[voterID]; ok {
		return nil, ErrAlreadyVoted
	}
	s.ballots[voterID] = candidate
	return s.Tally(), nil
}

func (s *VotingSession) Tally() Tally {
	counts := make(map[string]int, len(s.candidates))
	for _, c := range s.ballots {
		counts[c]++
	}
	out := make(Tally, len(s.candidates))
	for i, c := range s.candidates {
		out[i] = CandidateCount{Candidate: c, Votes: counts[c]}
	}
	return out
}

// Ranked returns the candidates that received votes, highest first.
// Equal counts keep candidate order, so the ranking is a pure function of the ballots.
func (s *VotingSession) Ranked() Tally {
	ranked := make(Tally, 0, len(s.candidates))
	for _, c := range s.Tally() {
		if c.Votes > 0 {
			ranked = append(ranked, c)
		}
	}
	slices.SortStableFunc(ranked, func(a, b CandidateCount) int { return b.Votes - a.Votes })
	return ranked
}

func (s *VotingSession) want() int {
	if s.kind == SessionCaptains {
		return 2
	}
	return 1
}

// Resolve closes the session. Captain votes need two distinct voted candidates and
// map votes need one; with less signal the winners are drawn at random from the
// eligible roster (captains) or the whole candidate pool (maps). A tie across the
// cut line is broken uniformly among the tied candidates only.
func (s *VotingSession) Resolve(rng *rand.Rand) (VoteResult, error) {
	if s.resolved {
		return VoteResult{}, ErrAlreadyResolved
	}
	want := s.want()
	ranked := s.Ranked()
	res := VoteResult{Kind: s.kind, Tally: s.Tally()}

	if len(ranked) < want {
		pool := s.candidates
		if s.kind == SessionCaptains {
			pool = participantIDs(s.eligible)
		}
		if len(pool) < want {
			return VoteResult{}, ErrNotEnoughVoters
		}
		res.Winners = sample(rng, pool, want)
		res.Fallback = true
		s.resolved = true
		return res, nil
	}

	winners := make([]string, 0, want)
	for i := 0; i < len(ranked) && len(winners) < want; {
		j := i
		for j < len(ranked) && ranked[j].Votes == ranked[i].Votes {
			j++
		}
		group := make([]string, 0, j-i)
		for _, c := range ranked[i:j] {
			group = append(group, c.Candidate)
		}
		if need := want - len(winners); len(group) > need {
			group = sample(rng, group, need)
		}
		winners = append(winners, group...)
		i = j
	}
	res.Winners = winners
	s.resolved = true
	return res, nil
}

// ResolveCaptains resolves a captain vote into the two captain identities, Team A first.
func (s *VotingSession) ResolveCaptains(rng *rand.Rand) ([2]Participant, VoteResult, error) {
	var captains [2]Participant
	if s.kind != SessionCaptains {
		return captains, VoteResult{}, ErrWrongSessionKind
	}
	res, err := s.Resolve(rng)
	if err != nil {
		return captains, res, err
	}
	for i, id := range res.Winners {
		p, _ := findParticipant(s.eligible, id)
		captains[i] = p
	}
	return captains, res, nil
}

func (s *VotingSession) ResolveMap(rng *rand.Rand) (string, VoteResult, error) {
	if s.kind != SessionMap {
		return "", VoteResult{}, ErrWrongSessionKind
	}
	res, err := s.Resolve(rng)
	if err != nil {
		return "", res, err
	}
	return res.Winners[0], res, nil
}
