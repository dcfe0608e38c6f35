package engine

import (
	"errors"
	"testing"
)

func newTestDraft() (*DraftController, Participant, Participant) {
	ps := roster(10)
	ca, cb := ps[0], ps[1]
	return NewDraft(ca, cb, ps[2:]), ca, cb
}

func TestDraft_SnakeOrderAndAutoFinish(t *testing.T) {
	d, ca, cb := newTestDraft()

	var pickers []string
	for !d.Done() {
		picker, ok := d.CurrentPicker()
		if !ok {
			t.Fatalf("picker missing before draft is done")
		}
		pickers = append(pickers, picker.ID)
		if _, err := d.Pick(picker.ID, 0); err != nil {
			t.Fatalf("pick %d: %v", len(pickers), err)
		}
	}

	want := []string{ca.ID, cb.ID, cb.ID, ca.ID, ca.ID, cb.ID, ca.ID}
	if len(pickers) != len(want) {
		t.Fatalf("got %d explicit picks, want %d", len(pickers), len(want))
	}
	for i := range want {
		if pickers[i] != want[i] {
			t.Fatalf("pick %d: got %s, want %s", i+1, pickers[i], want[i])
		}
	}

	last, ok := d.AutoAssigned()
	if !ok || last.ID != "P10" {
		t.Fatalf("expected P10 auto-assigned, got %+v ok=%v", last, ok)
	}
	a, b := d.TeamA(), d.TeamB()
	if len(a) != 5 || len(b) != 5 {
		t.Fatalf("want 5v5, got %d v %d", len(a), len(b))
	}
	if b[len(b)-1].ID != "P10" {
		t.Fatalf("last player should land on the smaller team (B)")
	}
	if a[0].ID != ca.ID || b[0].ID != cb.ID {
		t.Fatalf("captains must lead their teams")
	}

	seen := map[string]bool{}
	for _, p := range append(a, b...) {
		if seen[p.ID] {
			t.Fatalf("%s drafted twice", p.ID)
		}
		seen[p.ID] = true
	}
	if len(seen) != 10 {
		t.Fatalf("want 10 distinct players, got %d", len(seen))
	}
	if _, ok := d.CurrentPicker(); ok {
		t.Fatalf("terminal draft must not report a picker")
	}
}

func TestDraft_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		captain func(ca, cb Participant) string
		index   int
		wantErr error
	}{
		{name: "team B out of turn", captain: func(_, cb Participant) string { return cb.ID }, index: 0, wantErr: ErrWrongTurn},
		{name: "non captain", captain: func(_, _ Participant) string { return "P5" }, index: 0, wantErr: ErrWrongTurn},
		{name: "negative index", captain: func(ca, _ Participant) string { return ca.ID }, index: -1, wantErr: ErrIndexOutOfRange},
		{name: "index past pool", captain: func(ca, _ Participant) string { return ca.ID }, index: 8, wantErr: ErrIndexOutOfRange},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, ca, cb := newTestDraft()
			_, err := d.Pick(tc.captain(ca, cb), tc.index)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			if d.Cursor() != 0 || len(d.Pool()) != 8 {
				t.Fatalf("rejected pick mutated the draft")
			}
		})
	}
}

func TestDraft_PickAfterDone(t *testing.T) {
	d, _, _ := newTestDraft()
	for !d.Done() {
		p, _ := d.CurrentPicker()
		if _, err := d.Pick(p.ID, 0); err != nil {
			t.Fatalf("pick: %v", err)
		}
	}
	_, err := d.Pick("P1", 0)
	if !errors.Is(err, ErrDraftComplete) {
		t.Fatalf("want ErrDraftComplete, got %v", err)
	}
}

func TestDraft_AutoPickTakesFromPool(t *testing.T) {
	d, ca, _ := newTestDraft()
	p, err := d.AutoPick(seeded(3))
	if err != nil {
		t.Fatalf("auto pick: %v", err)
	}
	if ContainsParticipant(d.Pool(), p.ID) {
		t.Fatalf("auto-picked player still in pool")
	}
	a := d.TeamA()
	if len(a) != 2 || a[0].ID != ca.ID || a[1].ID != p.ID {
		t.Fatalf("auto pick should go to the captain on the clock, team A = %+v", a)
	}
}
