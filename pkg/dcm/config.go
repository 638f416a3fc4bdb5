package dcm

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/roffe/canrecon/pkg/sweep"
)

type Config struct {
	// SettleDelay is the wait after each candidate of a linear scan.
	SettleDelay time.Duration
	// SubFunctionDelay is the initial wait per sub-function candidate.
	SubFunctionDelay time.Duration
	// ContinuationDelay is the wait renewed for every frame of a multi-frame reply.
	ContinuationDelay time.Duration
	// DelayStep is the polling granularity of adjustable waits.
	DelayStep time.Duration

	OnProgress func(Progress)
	Log        zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		SettleDelay:       sweep.DefaultSettleDelay,
		SubFunctionDelay:  sweep.DefaultDelay,
		ContinuationDelay: time.Second,
		DelayStep:         sweep.DefaultDelayStep,
		Log:               zerolog.Nop(),
	}
}

// Progress is reported once per candidate.
type Progress struct {
	Mode      Mode
	Candidate string
	Found     int
}
