package engine

import "math/rand/v2"

func participantIDs(ps []Participant) []string {
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}

func findParticipant(ps []Participant, id string) (Participant, bool) {
	for _, p := range ps {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// ContainsParticipant reports whether ps holds a participant with id.
func ContainsParticipant(ps []Participant, id string) bool {
	_, ok := findParticipant(ps, id)
	return ok
}

// Without returns ps minus every participant in drop, keeping order.
func Without(ps []Participant, drop ...Participant) []Participant {
	out := make([]Participant, 0, len(ps))
	for _, p := range ps {
		if !ContainsParticipant(drop, p.ID) {
			out = append(out, p)
		}
	}
	return out
}

// sample draws k distinct elements of xs uniformly, in draw order.
func sample(rng *rand.Rand, xs []string, k int) []string {
	perm := rng.Perm(len(xs))
	out := make([]string, k)
	for i := range k {
		out[i] = xs[perm[i]]
	}
	return out
}
