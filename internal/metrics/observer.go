package metrics

import "time"

// Edit outcomes used as a metric dimension/label.
const (
	OutcomeSuccess     = "success"
	OutcomeConfigError = "config_error"
	OutcomeFailure     = "failure"
)

// Observer receives edit and HTTP request observations.
// Implementations must be safe for concurrent use.
type Observer interface {
	ObserveEdit(outcome string, d time.Duration)
	ObserveRequest(method, endpoint string, status int, d time.Duration)
}

// Nop discards all observations.
type Nop struct{}

var _ Observer = Nop{}

// ObserveEdit implements Observer.
func (Nop) ObserveEdit(string, time.Duration) {}

// ObserveRequest implements Observer.
func (Nop) ObserveRequest(string, string, int, time.Duration) {}
