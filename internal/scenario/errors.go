package scenario

import "fmt"

// StartupError reports a required process that did not start inside its
// window. The observer is never created when this is returned.
type StartupError struct {
	Process string
	Err     error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("%s did not start: %v", e.Process, e.Err)
}

func (e *StartupError) Cause() error  { return e.Err }
func (e *StartupError) Unwrap() error { return e.Err }

// DeliveryTimeoutError reports that nothing arrived on Topic before the
// delivery timeout.
type DeliveryTimeoutError struct {
	Topic string
}

func (e *DeliveryTimeoutError) Error() string {
	return fmt.Sprintf("Did not receive '%s' msgs.", e.Topic)
}
