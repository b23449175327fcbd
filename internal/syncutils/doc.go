// Package syncutils provides the mutex types used by the in-process stores.
// Building with -tags deadlock swaps them for sasha-s/go-deadlock, which reports
// lock-order inversions and long waits.
package syncutils
