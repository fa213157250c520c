package admission

import "log"

// AsyncExecutor is the external collaborator a C1 escalation task is
// handed to; the core never blocks waiting on it (spec.md §4.8, §6 names
// this collaborator without specifying its implementation). Grounded on
// the teacher's internal/ledger/client.go fire-and-forget LogTurn call,
// generalized from "log one turn" to "hand off one escalation".
type AsyncExecutor interface {
	// EscalateToCold fires once, the cycle a predicate crosses into C1.
	EscalateToCold(predicate uint64) error
	// Finalize hands one C1-classified triple to the cold path for
	// out-of-band processing; the engine does not wait on it and emits a
	// placeholder receipt in its place.
	Finalize(predicate, s, p, o uint64) error
}

// LoggingAsyncExecutor is the default AsyncExecutor: it only logs the
// escalation, standing in for whatever out-of-process cold-path worker
// (task queue, batch job) a deployment wires in its place.
type LoggingAsyncExecutor struct{}

// EscalateToCold logs predicate's escalation and always succeeds.
func (LoggingAsyncExecutor) EscalateToCold(predicate uint64) error {
	log.Printf("admission: predicate %d escalated to C1, emitting async finalize task", predicate)
	return nil
}

// Finalize logs the handoff and always succeeds.
func (LoggingAsyncExecutor) Finalize(predicate, s, p, o uint64) error {
	log.Printf("admission: predicate %d triple (%d,%d,%d) handed to cold path", predicate, s, p, o)
	return nil
}
