package security

import (
	"math"
	"time"
)

// Input is the subset of engine configuration the assessment needs.
type Input struct {
	Digits         int
	CodeTTL        time.Duration
	ThrottleWindow time.Duration
	MaxAttempts    int
	DecayWindow    time.Duration
}

// Report summarizes how hard a single code is to brute force.
type Report struct {
	Digits      int
	CodeSpace   uint64
	EntropyBits float64

	CodeTTL        time.Duration
	ThrottleWindow time.Duration
	MaxAttempts    int
	DecayWindow    time.Duration

	// GuessesPerCode is the most submissions one user can make while a single
	// code is alive.
	GuessesPerCode int64
	// GuessProbability is GuessesPerCode / CodeSpace, capped at 1.
	GuessProbability float64
	// IssuesPerHour is the most codes one (user, channel) can receive per hour.
	IssuesPerHour int64
}

// Assess computes a [Report]. Non-positive windows are treated as unlimited.
func Assess(in Input) Report {
	r := Report{
		Digits:         in.Digits,
		CodeTTL:        in.CodeTTL,
		ThrottleWindow: in.ThrottleWindow,
		MaxAttempts:    in.MaxAttempts,
		DecayWindow:    in.DecayWindow,
	}
	if in.Digits > 0 && in.Digits < 20 {
		r.CodeSpace = uint64(math.Pow10(in.Digits))
		r.EntropyBits = float64(in.Digits) * math.Log2(10)
	}

	if in.DecayWindow > 0 && in.MaxAttempts > 0 {
		windows := int64(math.Ceil(float64(in.CodeTTL) / float64(in.DecayWindow)))
		if windows < 1 {
			windows = 1
		}
		r.GuessesPerCode = int64(in.MaxAttempts) * windows
	} else {
		r.GuessesPerCode = math.MaxInt64
	}

	if r.CodeSpace == 0 {
		r.GuessProbability = 1
	} else {
		r.GuessProbability = math.Min(1, float64(r.GuessesPerCode)/float64(r.CodeSpace))
	}

	if in.ThrottleWindow > 0 {
		r.IssuesPerHour = int64(time.Hour / in.ThrottleWindow)
	} else {
		r.IssuesPerHour = math.MaxInt64
	}
	return r
}
