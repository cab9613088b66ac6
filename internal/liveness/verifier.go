// Package liveness implements a blink heuristic: an entry attempt is accepted
// only after the eyes are seen closing and reopening inside a bounded window.
//
// This is a best-effort guard against a printed photo held up to the camera.
// It does not defend against replayed video.
package liveness

import (
	"time"
)

type State int

const (
	StateIdle State = iota
	StateChecking
	StatePassed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

type Status string

const (
	StatusPending Status = "pending"
	StatusLive    Status = "live"
	StatusNotLive Status = "not_live"
)

const (
	MessageTimedOut      = "Liveness check timed out"
	MessageBlinkDetected = "Liveness verified (blink detected)"
	MessageEyesHidden    = "Eyes not visible, please face the camera"
	MessagePleaseBlink   = "Please blink naturally"
)

// Result is returned for every observed frame.
type Result struct {
	Status  Status        `json:"status"`
	Elapsed time.Duration `json:"elapsed"`
	Message string        `json:"message"`
}

type Config struct {
	Timeout   time.Duration `yaml:"timeout"`
	MinClosed time.Duration `yaml:"min_closed"`
}

func DefaultConfig() Config {
	return Config{
		Timeout:   1500 * time.Millisecond,
		MinClosed: 150 * time.Millisecond,
	}
}

// session is the mutable state of one attempt.
type session struct {
	eyesVisiblePrevious bool
	eyeCloseStartedAt   time.Time // zero when eyes are open
	startedAt           time.Time // zero until the first Step
	blinkConfirmed      bool
}

// Verifier is not safe for concurrent use; one attempt runs at a time.
type Verifier struct {
	cfg   Config
	state State
	sess  session
	last  Result
}

func New(cfg Config) *Verifier {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MinClosed <= 0 {
		cfg.MinClosed = def.MinClosed
	}
	return &Verifier{cfg: cfg, state: StateIdle}
}

func (v *Verifier) Config() Config {
	return v.cfg
}

func (v *Verifier) State() State {
	return v.state
}

// Reset discards the current attempt and starts a fresh check. The session
// clock starts on the next Step.
func (v *Verifier) Reset() {
	v.sess = session{eyesVisiblePrevious: true}
	v.state = StateChecking
	v.last = Result{}
}

// Abandon drops the current attempt and returns to Idle.
func (v *Verifier) Abandon() {
	v.sess = session{}
	v.state = StateIdle
	v.last = Result{}
}

// Step consumes one frame's eye-visibility observation. Once the verifier
// has passed or failed, Step keeps returning that result until Reset.
func (v *Verifier) Step(eyesVisibleNow bool, now time.Time) Result {
	switch v.state {
	case StateIdle:
		v.Reset()
	case StatePassed, StateFailed:
		return v.last
	}

	if v.sess.startedAt.IsZero() {
		v.sess.startedAt = now
	}
	elapsed := now.Sub(v.sess.startedAt)

	if elapsed > v.cfg.Timeout {
		return v.finish(StateFailed, Result{Status: StatusNotLive, Elapsed: elapsed, Message: MessageTimedOut})
	}

	switch {
	case !eyesVisibleNow && v.sess.eyesVisiblePrevious:
		v.sess.eyeCloseStartedAt = now
	case eyesVisibleNow && !v.sess.eyesVisiblePrevious:
		if !v.sess.eyeCloseStartedAt.IsZero() && now.Sub(v.sess.eyeCloseStartedAt) >= v.cfg.MinClosed {
			v.sess.blinkConfirmed = true
		}
		v.sess.eyeCloseStartedAt = time.Time{}
	}
	v.sess.eyesVisiblePrevious = eyesVisibleNow

	if v.sess.blinkConfirmed {
		return v.finish(StatePassed, Result{Status: StatusLive, Elapsed: elapsed, Message: MessageBlinkDetected})
	}

	res := Result{Status: StatusPending, Elapsed: elapsed, Message: MessagePleaseBlink}
	if !eyesVisibleNow {
		res.Message = MessageEyesHidden
	}
	v.last = res
	return res
}

func (v *Verifier) finish(state State, res Result) Result {
	v.state = state
	v.last = res
	return res
}
