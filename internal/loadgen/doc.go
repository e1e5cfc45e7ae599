// Package loadgen drives concurrent borrow, return and copy-maintenance traffic against the lending
// engine at a fixed request rate, then checks that every title's copies are still accounted for.
//
// It is used by "lendingctl load" to soak a database and to watch the engine's retry and
// rejection metrics under contention.
package loadgen
