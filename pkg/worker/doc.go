// Package worker runs flows in the background.
//
// A Worker consumes tasks from a taskqueue.Queue, resolves the named flow
// and runs it against a fresh memory store seeded with the task input.
// Every run leaves a Run record (status, attempt count, result record and
// final store snapshot) that callers can poll by id.
//
// Failed runs are retried up to Config.MaxAttempts total attempts, with an
// exponential Backoff between them, by re-queuing the task with a NotBefore
// time. Several workers, or one Worker with several loops, can share a
// queue: each task is handed to exactly one of them.
package worker
