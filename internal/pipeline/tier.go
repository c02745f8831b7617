package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/mathcast/internal/render"
	"github.com/bobarin/mathcast/internal/timeline"
)

// Tier is one rendering attempt configuration, richest first.
type Tier int

const (
	TierEnhanced Tier = iota
	TierBasic
	TierVideoOnly
)

func (t Tier) String() string {
	switch t {
	case TierEnhanced:
		return "enhanced"
	case TierBasic:
		return "basic"
	case TierVideoOnly:
		return "video_only"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Fidelity is the renderer preset for the tier. Video-only reuses the
// basic frames.
func (t Tier) Fidelity() render.Fidelity {
	if t == TierEnhanced {
		return render.Enhanced
	}
	return render.Basic
}

// Narrated reports whether the tier carries an audio track.
func (t Tier) Narrated() bool { return t != TierVideoOnly }

// Captioned reports whether the tier emits a caption stream.
func (t Tier) Captioned() bool { return t == TierEnhanced }

// State is a position in the fallback state machine:
// TryEnhanced → TryBasic → VideoOnly → Abandoned, with Completed reachable
// from each attempt.
type State int

const (
	StateTryEnhanced State = iota
	StateTryBasic
	StateVideoOnly
	StateCompleted
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateTryEnhanced:
		return "try_enhanced"
	case StateTryBasic:
		return "try_basic"
	case StateVideoOnly:
		return "video_only"
	case StateCompleted:
		return "completed"
	case StateAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool { return s == StateCompleted || s == StateAbandoned }

// Tier is the attempt made in a non-terminal state.
func (s State) Tier() Tier {
	switch s {
	case StateTryBasic:
		return TierBasic
	case StateVideoOnly:
		return TierVideoOnly
	default:
		return TierEnhanced
	}
}

// TierResult is the outcome of one attempt.
type TierResult struct {
	Tier       Tier
	OutputPath string
	Timeline   *timeline.Timeline
	Duration   time.Duration
	Err        error
}

func (r TierResult) OK() bool { return r.Err == nil }

// Fatal results end the job without trying lower tiers.
func (r TierResult) Fatal() bool {
	return errors.Is(r.Err, timeline.ErrAssemblyInvariant) ||
		errors.Is(r.Err, context.Canceled) ||
		errors.Is(r.Err, context.DeadlineExceeded)
}

// Next is the transition function of the fallback machine.
func Next(s State, r TierResult) State {
	if s.Terminal() {
		return s
	}
	if r.OK() {
		return StateCompleted
	}
	if r.Fatal() {
		return StateAbandoned
	}
	switch s {
	case StateTryEnhanced:
		return StateTryBasic
	case StateTryBasic:
		return StateVideoOnly
	default:
		return StateAbandoned
	}
}
