// Package vad implements an energy-based voice activity detector with
// hysteresis, state-machine shaped like the teacher's provider/vad
// interfaces but driven by frame RMS thresholds instead of a neural model.
package vad

import "fmt"

// State is one of the four hysteresis states a Detector cycles through.
type State int

const (
	StateSilence State = iota
	StateCandidateActive
	StateActive
	StateCandidateSilence
)

func (s State) String() string {
	switch s {
	case StateSilence:
		return "SILENCE"
	case StateCandidateActive:
		return "CANDIDATE_ACTIVE"
	case StateActive:
		return "ACTIVE"
	case StateCandidateSilence:
		return "CANDIDATE_SILENCE"
	default:
		return "UNKNOWN"
	}
}

// Config fixes the detector's thresholds and hysteresis durations.
type Config struct {
	OnThresholdRMS  float64 // frame RMS (linear) at/above which a frame counts toward activation
	OffThresholdRMS float64 // frame RMS (linear) at/below which a frame counts toward deactivation
	MinActiveMs     float64 // D_on: sustained above-threshold duration before entering ACTIVE
	MinSilenceMs    float64 // D_off: sustained below-threshold duration before returning to SILENCE
	HopMs           float64 // frame hop, to convert the above durations to frame counts
}

// Result is the per-frame annotation VAD emits.
type Result struct {
	State  State
	Active bool
	Onset  bool // true only on the frame that enters ACTIVE
	Offset bool // true only on the frame that leaves ACTIVE
}

// Detector is a stateful hysteresis VAD. The zero value is not usable;
// construct with New.
type Detector struct {
	cfg Config

	onFrames  int
	offFrames int

	state        State
	candidateRun int
}

// New validates cfg and returns a Detector starting in StateSilence.
func New(cfg Config) (*Detector, error) {
	if cfg.HopMs <= 0 {
		return nil, fmt.Errorf("vad: hop_ms must be positive")
	}
	if cfg.OnThresholdRMS < cfg.OffThresholdRMS {
		return nil, fmt.Errorf("vad: on threshold (%v) must be >= off threshold (%v)", cfg.OnThresholdRMS, cfg.OffThresholdRMS)
	}

	onFrames := framesFor(cfg.MinActiveMs, cfg.HopMs)
	offFrames := framesFor(cfg.MinSilenceMs, cfg.HopMs)

	return &Detector{
		cfg:       cfg,
		onFrames:  onFrames,
		offFrames: offFrames,
		state:     StateSilence,
	}, nil
}

func framesFor(durationMs, hopMs float64) int {
	if durationMs <= 0 {
		return 1
	}
	n := int(durationMs/hopMs + 0.999999)
	if n < 1 {
		n = 1
	}
	return n
}

// Step advances the state machine by one frame given that frame's linear
// RMS energy.
func (d *Detector) Step(rms float64) Result {
	prevState := d.state

	switch d.state {
	case StateSilence:
		if rms >= d.cfg.OnThresholdRMS {
			d.candidateRun = 1
			d.state = StateCandidateActive
		}
	case StateCandidateActive:
		if rms >= d.cfg.OnThresholdRMS {
			d.candidateRun++
			if d.candidateRun >= d.onFrames {
				d.state = StateActive
			}
		} else {
			d.candidateRun = 0
			d.state = StateSilence
		}
	case StateActive:
		if rms <= d.cfg.OffThresholdRMS {
			d.candidateRun = 1
			d.state = StateCandidateSilence
		}
	case StateCandidateSilence:
		if rms <= d.cfg.OffThresholdRMS {
			d.candidateRun++
			if d.candidateRun >= d.offFrames {
				d.state = StateSilence
			}
		} else {
			d.candidateRun = 0
			d.state = StateActive
		}
	}

	active := d.state == StateActive
	onset := prevState != StateActive && d.state == StateActive
	offset := prevState == StateActive && d.state != StateActive

	return Result{
		State:  d.state,
		Active: active,
		Onset:  onset,
		Offset: offset,
	}
}

// Reset returns the detector to its initial SILENCE state.
func (d *Detector) Reset() {
	d.state = StateSilence
	d.candidateRun = 0
}

// State reports the detector's current state without advancing it.
func (d *Detector) State() State {
	return d.state
}
