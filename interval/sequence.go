// Package interval assigns irregularly captured snapshots onto a regular
// time grid. Each slot of the grid receives the most recent snapshot known
// to have been captured before the slot's target time, or is marked missing
// when no snapshot had been captured yet.
package interval

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrStep is returned when the step is non-positive or does not evenly
// divide the window.
var ErrStep = errors.New("interval: step does not evenly divide window")

// Snapshot is one captured listing file for a region.
type Snapshot struct {
	// Path locates the source file.
	Path string
	// Captured is the capture time, parsed from the file name.
	Captured time.Time
}

// Slot is one fixed point on the grid covering a window.
type Slot struct {
	// Index is the slot's position within the window, starting at 0.
	Index int
	// Target is start + (Index+1)*step.
	Target time.Time
}

// Assignment binds a slot to the snapshot in effect at its target time.
// Source is nil when no snapshot had been captured yet.
type Assignment struct {
	Slot   Slot
	Source *Snapshot
}

// Missing reports whether the slot has no snapshot assigned.
func (a Assignment) Missing() bool { return a.Source == nil }

// Sequence assigns snapshots to every slot of the window [start, end).
// Slot targets are start+step, start+2*step, ... up to and including end.
//
// snaps must be sorted ascending by capture time. Each slot receives the
// next pending snapshot once its capture time falls before the slot target;
// otherwise the previously assigned snapshot carries forward. Slots before
// the first capture are missing.
//
// The pass is O(slots + snapshots): snapshots certain to precede start are
// skipped up front, and the cursor only moves forward.
func Sequence(start, end time.Time, step time.Duration, snaps []Snapshot) ([]Assignment, error) {
	window := end.Sub(start)
	if step <= 0 || window <= 0 {
		return nil, fmt.Errorf("%w: window %v, step %v", ErrStep, window, step)
	}
	if window%step != 0 {
		return nil, fmt.Errorf("%w: window %v, step %v", ErrStep, window, step)
	}
	n := int(window / step)

	// Skip history certain to precede the window: position the cursor one
	// snapshot before the first capture at or after start, so the slot loop
	// still sees the last pre-window snapshot as its first candidate.
	cur := sort.Search(len(snaps), func(i int) bool {
		return !snaps[i].Captured.Before(start)
	}) - 1
	if cur < 0 {
		cur = 0
	}

	out := make([]Assignment, 0, n)
	var last *Snapshot
	for i := 0; i < n; i++ {
		slot := Slot{Index: i, Target: start.Add(step * time.Duration(i+1))}

		var cand *Snapshot
		switch {
		case cur < len(snaps):
			cand = &snaps[cur]
		case last != nil:
			// All snapshots consumed: the final known state carries forward.
			cand = last
		}
		if cand == nil {
			out = append(out, Assignment{Slot: slot})
			continue
		}

		if !cand.Captured.Before(slot.Target) {
			// Candidate not yet captured as of this slot; keep it pending.
			out = append(out, Assignment{Slot: slot, Source: last})
			continue
		}
		out = append(out, Assignment{Slot: slot, Source: cand})
		last = cand
		if cur < len(snaps) {
			cur++
		}
	}
	return out, nil
}
