package exchange

import (
	"fmt"
)

// ProtocolError occurs when the guest answers with something its contract
// rules out.
type ProtocolError struct {
	Function string
	Detail   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("guest violated the '%s' contract: %s", e.Function, e.Detail)
}

// SessionClosedError occurs when a session is used after Close.
type SessionClosedError struct {
	InstanceID string
}

func (e *SessionClosedError) Error() string {
	return fmt.Sprintf("session for instance '%s' is closed", e.InstanceID)
}
