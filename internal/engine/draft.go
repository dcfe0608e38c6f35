package engine

import (
	"math/rand/v2"
	"slices"
)

// DraftController runs a fixed pick order over a shrinking pool.
// Not safe for concurrent use; the owning queue serialises access.
type DraftController struct {
	captains [2]Participant
	teams    [2][]Participant
	pool     []Participant
	order    []Team
	cursor   int
	auto     *Participant
}

func NewDraft(captainA, captainB Participant, pool []Participant) *DraftController {
	d := &DraftController{
		captains: [2]Participant{captainA, captainB},
		teams:    [2][]Participant{{captainA}, {captainB}},
		pool:     slices.Clone(pool),
		order:    SnakeOrder,
	}
	d.finish()
	return d
}

// CurrentPicker returns the captain on the clock, or false once the draft is over.
func (d *DraftController) CurrentPicker() (Participant, bool) {
	if d.Done() {
		return Participant{}, false
	}
	return d.captains[d.order[d.cursor]-1], true
}

func (d *DraftController) CurrentTeam() (Team, bool) {
	if d.Done() {
		return 0, false
	}
	return d.order[d.cursor], true
}

func (d *DraftController) Done() bool {
	return d.cursor >= len(d.order) || len(d.pool) == 0
}

func (d *DraftController) Pick(captainID string, poolIndex int) (Participant, error) {
	picker, ok := d.CurrentPicker()
	if !ok {
		return Participant{}, ErrDraftComplete
	}
	if picker.ID != captainID {
		return Participant{}, ErrWrongTurn
	}
	if poolIndex < 0 || poolIndex >= len(d.pool) {
		return Participant{}, ErrIndexOutOfRange
	}
	return d.take(poolIndex), nil
}

// AutoPick assigns a random pool member to the captain on the clock.
func (d *DraftController) AutoPick(rng *rand.Rand) (Participant, error) {
	if d.Done() {
		return Participant{}, ErrDraftComplete
	}
	return d.take(rng.IntN(len(d.pool))), nil
}

func (d *DraftController) take(i int) Participant {
	team := d.order[d.cursor]
	p := d.pool[i]
	d.pool = slices.Delete(d.pool, i, i+1)
	d.teams[team-1] = append(d.teams[team-1], p)
	d.cursor++
	d.finish()
	return p
}

// finish places the single player left after the scripted picks on the smaller team,
// Team A on a tie.
func (d *DraftController) finish() {
	if d.cursor < len(d.order) || len(d.pool) != 1 {
		return
	}
	last := d.pool[0]
	d.pool = d.pool[:0]
	if len(d.teams[1]) < len(d.teams[0]) {
		d.teams[1] = append(d.teams[1], last)
	} else {
		d.teams[0] = append(d.teams[0], last)
	}
	d.auto = &last
}

// AutoAssigned returns the player placed without a pick prompt, if any.
func (d *DraftController) AutoAssigned() (Participant, bool) {
	if d.auto == nil {
		return Participant{}, false
	}
	return *d.auto, true
}

func (d *DraftController) Cursor() int              { return d.cursor }
func (d *DraftController) Pool() []Participant      { return slices.Clone(d.pool) }
func (d *DraftController) TeamA() []Participant     { return slices.Clone(d.teams[0]) }
func (d *DraftController) TeamB() []Participant     { return slices.Clone(d.teams[1]) }
func (d *DraftController) Captains() [2]Participant { return d.captains }
