package logic

import (
	"fmt"
	"time"
)

// GestureSet is the detector set of one delivery context. Its press window
// state is never shared with another context.
// Not safe for concurrent use; the caller must synchronize.
type GestureSet struct {
	detectors []*Detector
	chords    []GestureConfig
	watched   map[Button]bool
	// held maps a physical button to the time it went down.
	held map[Button]time.Time
}

// NewGestureSet validates the configs and builds one detector per gesture.
func NewGestureSet(cfgs []GestureConfig) (*GestureSet, error) {
	g := &GestureSet{
		watched: make(map[Button]bool),
		held:    make(map[Button]time.Time),
	}
	names := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if names[cfg.Name] {
			return nil, fmt.Errorf("gesture %s: duplicate name", cfg.Name)
		}
		names[cfg.Name] = true

		g.detectors = append(g.detectors, NewDetector(cfg))
		if cfg.IsChord() {
			g.chords = append(g.chords, cfg)
		}
		for _, b := range cfg.Buttons {
			g.watched[b] = true
		}
	}
	return g, nil
}

// Classify feeds the event to every detector and picks the action to take.
// sessionActive selects between the armed and idle priority orders.
func (g *GestureSet) Classify(ev KeyEvent, sessionActive bool) Decision {
	if !g.watched[ev.Button] {
		return Decision{Action: ActionPassThrough}
	}

	events := append([]KeyEvent{ev}, g.chordEvents(ev)...)

	best := ActionNone
	bestRank := 0
	var bestName string
	var fired []string
	recognized := false
	for _, e := range events {
		for _, d := range g.detectors {
			obs := d.Observe(e)
			recognized = recognized || obs.Recognized
			if obs.Outcome != OutcomeFired {
				continue
			}
			cfg := d.Config()
			fired = append(fired, cfg.Name)
			if r := actionRank(cfg.Action, sessionActive); r > bestRank {
				best, bestRank, bestName = cfg.Action, r, cfg.Name
			}
		}
	}

	return Decision{
		Action:   best,
		Gesture:  bestName,
		Gestures: fired,
		Consume:  recognized && best != ActionNone,
	}
}

// chordEvents updates the held set and returns a synthetic event for every
// chord completed by ev.
func (g *GestureSet) chordEvents(ev KeyEvent) []KeyEvent {
	switch ev.Transition {
	case TransitionUp:
		delete(g.held, ev.Button)
		return nil
	case TransitionDown:
		if ev.Repeat {
			return nil
		}
		g.held[ev.Button] = ev.Time
	default:
		return nil
	}

	var out []KeyEvent
	for _, c := range g.chords {
		if g.chordComplete(c, ev) {
			out = append(out, KeyEvent{
				Button:     c.Button(),
				Transition: TransitionDown,
				Time:       ev.Time,
			})
		}
	}
	return out
}

func (g *GestureSet) chordComplete(c GestureConfig, ev KeyEvent) bool {
	member := false
	for _, b := range c.Buttons {
		if b == ev.Button {
			member = true
			continue
		}
		at, ok := g.held[b]
		if !ok || ev.Time.Sub(at) > c.ChordWindow {
			return false
		}
	}
	return member
}

// Reset clears every detector and the held-button set.
func (g *GestureSet) Reset() {
	for _, d := range g.detectors {
		d.Reset()
	}
	g.held = make(map[Button]time.Time)
}

// Detector returns the detector for the named gesture, or nil.
func (g *GestureSet) Detector(name string) *Detector {
	for _, d := range g.detectors {
		if d.Config().Name == name {
			return d
		}
	}
	return nil
}

// actionRank orders fired actions. SOS-class actions beat the fake call;
// escalate and cancel are no-ops without an armed session.
func actionRank(a Action, sessionActive bool) int {
	switch a {
	case ActionCancelSession:
		if sessionActive {
			return 4
		}
	case ActionEscalate:
		if sessionActive {
			return 3
		}
	case ActionStartSession:
		return 2
	case ActionStartFakeCall:
		return 1
	}
	return 0
}
