// Package cleaner schedules and executes recurring channel cleanups.
//
// A Manager keeps the per-workspace job table in memory, checkpoints it to
// the store after every mutation and every completed run, and scans it on a
// fixed tick. Due jobs are handed to a bounded worker pool; execution is
// throttled by a shared rate limiter so a burst of due channels cannot hammer
// the messaging API.
package cleaner
