package conclave

import "errors"

var (
	ErrSessionAlreadyStarted = errors.New("conclave: session already started")
	ErrMotionNotFound        = errors.New("conclave: motion not found")
	ErrMotionNotDebating     = errors.New("conclave: motion is not in debating state")
	ErrMotionNotVoting       = errors.New("conclave: motion is not in voting state")
	ErrReconciliationTimeout = errors.New("conclave: reconciliation did not complete within the bounded window; session halted rather than closed on partial data")
	ErrSessionHalted         = errors.New("conclave: session is halted")
)
