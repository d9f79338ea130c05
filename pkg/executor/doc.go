// Package executor dispatches tool calls.
//
// Execute looks the tool up, validates its parameters, applies the gameplay
// lock policy and then either queues the call for human approval or runs it
// immediately. An immediate run happens inside one unit of work: the
// character snapshot before, the handler, the snapshot after and the audit
// record commit or roll back together. A handler failure rolls the mutation
// back and is recorded separately as a failed audit record whose after
// snapshot equals its before snapshot.
//
// Execute never returns a Go error and never panics; every failure is a
// Result with Success=false and an ErrorKind.
package executor
