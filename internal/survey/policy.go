package survey

import (
	"errors"

	"asv-survey/internal/actuator"
	"asv-survey/internal/helm"
	"asv-survey/internal/nmea"
	"asv-survey/internal/retry"
	"asv-survey/internal/sonde"
)

// Policy is what the loop does about a failed step.
type Policy int

const (
	// PolicySkipCycle drops the rest of the cycle; the mission continues.
	PolicySkipCycle Policy = iota
	// PolicyRetry re-establishes session state (renegotiation) next cycle.
	PolicyRetry
	// PolicyDisableSampling keeps surveying without further actuation.
	PolicyDisableSampling
	// PolicyAbort ends the mission.
	PolicyAbort
)

func (p Policy) String() string {
	switch p {
	case PolicySkipCycle:
		return "skip-cycle"
	case PolicyRetry:
		return "retry"
	case PolicyDisableSampling:
		return "disable-sampling"
	case PolicyAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Classify maps an error from a running mission to its policy. Errors that
// are not recognized skip the cycle, including transport timeouts: only the
// loop's own context ending stops a mission, and RunCycle checks that
// directly.
func Classify(err error) Policy {
	switch {
	case err == nil:
		return PolicySkipCycle
	case errors.Is(err, sonde.ErrUnknownParameter), errors.Is(err, helm.ErrLinkClosed):
		return PolicyAbort
	case errors.Is(err, sonde.ErrSessionState):
		return PolicyRetry
	case errors.Is(err, actuator.ErrBankExhausted), errors.Is(err, actuator.ErrChannelRange):
		return PolicyDisableSampling
	case errors.Is(err, helm.ErrNoFix),
		errors.Is(err, nmea.ErrMalformed),
		errors.Is(err, sonde.ErrNotReady),
		errors.Is(err, sonde.ErrMalformedFrame),
		errors.Is(err, sonde.ErrArityMismatch),
		errors.Is(err, retry.ErrExhausted):
		return PolicySkipCycle
	default:
		return PolicySkipCycle
	}
}
