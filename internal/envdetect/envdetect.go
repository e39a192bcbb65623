// Package envdetect decides which transport a caller can use to reach the
// document API.
package envdetect

import "github.com/starford/izy/internal/bus"

// Strategy is a transport choice.
type Strategy int

const (
	// DirectNetwork calls the remote API in place, possibly through a relay URL.
	DirectNetwork Strategy = iota
	// BackgroundMessaging hands the request to the privileged executor.
	BackgroundMessaging
	// SandboxRelay posts the request to the parent frame's relay bridge.
	SandboxRelay
)

func (s Strategy) String() string {
	switch s {
	case BackgroundMessaging:
		return "background"
	case SandboxRelay:
		return "sandbox-relay"
	default:
		return "direct"
	}
}

// Detector resolves the strategy for one call.
type Detector interface {
	Detect() Strategy
}

// Environment describes the execution context. A nil port means the
// capability is absent.
type Environment struct {
	// Frame is the port to a parent context when running nested inside one.
	Frame bus.Port
	// Runtime is the privileged messaging port to the background executor.
	Runtime bus.Port
}

// EnvDetector inspects an Environment. Checks run in fixed priority order
// and the first match wins.
type EnvDetector struct {
	Env Environment
}

// Detect implements Detector.
func (d EnvDetector) Detect() Strategy {
	switch {
	case d.Env.Frame != nil:
		return SandboxRelay
	case d.Env.Runtime != nil:
		return BackgroundMessaging
	default:
		return DirectNetwork
	}
}

// Fixed always returns the same strategy.
type Fixed Strategy

// Detect implements Detector.
func (f Fixed) Detect() Strategy { return Strategy(f) }
