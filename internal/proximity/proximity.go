// Package proximity decides when the vehicle is close enough to a sampling
// target to take a sample there.
package proximity

import (
	"math"
	"sync"

	"asv-survey/internal/geo"
)

// Evaluate finds the remaining target nearest to pos. When its distance is
// strictly below thresholdM meters it is removed and returned. Ties go to the
// earliest entry. The input slice is never modified.
func Evaluate(pos geo.Point, worklist []geo.Waypoint, thresholdM float64) (*geo.Waypoint, []geo.Waypoint) {
	best, bestD := Nearest(pos, worklist)
	if best < 0 || !(bestD < thresholdM) {
		return nil, worklist
	}
	hit := worklist[best]
	rest := make([]geo.Waypoint, 0, len(worklist)-1)
	rest = append(rest, worklist[:best]...)
	rest = append(rest, worklist[best+1:]...)
	return &hit, rest
}

// Nearest returns the index and distance of the closest target, or -1.
// Targets at a non-finite distance are never chosen.
func Nearest(pos geo.Point, worklist []geo.Waypoint) (int, float64) {
	best, bestD := -1, 0.0
	for i, wp := range worklist {
		d := geo.Distance(pos, wp.Point)
		if math.IsNaN(d) || math.IsInf(d, 0) {
			continue
		}
		if best < 0 || d < bestD {
			best, bestD = i, d
		}
	}
	return best, bestD
}

// Worklist owns the not-yet-visited targets. Each target leaves it at most
// once.
type Worklist struct {
	mu         sync.Mutex
	targets    []geo.Waypoint
	thresholdM float64
}

func NewWorklist(targets []geo.Waypoint, thresholdM float64) *Worklist {
	return &Worklist{targets: append([]geo.Waypoint(nil), targets...), thresholdM: thresholdM}
}

// Consume applies Evaluate and commits the removal.
func (w *Worklist) Consume(pos geo.Point) (*geo.Waypoint, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	hit, rest := Evaluate(pos, w.targets, w.thresholdM)
	if hit == nil {
		return nil, false
	}
	w.targets = rest
	return hit, true
}

func (w *Worklist) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.targets)
}

// Remaining returns a copy of the targets still to visit.
func (w *Worklist) Remaining() []geo.Waypoint {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]geo.Waypoint(nil), w.targets...)
}

func (w *Worklist) Threshold() float64 { return w.thresholdM }
