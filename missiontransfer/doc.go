// Package missiontransfer implements the MAVLink mission micro-protocol:
// upload, download, server-side receive of a peer-initiated upload,
// clear-all and set-current-item, each as a small retrying state machine
// driven by an externally supplied Sender, Dispatcher and TimeoutScheduler.
//
// The engine itself spawns no goroutines. Callers drive it by submitting
// work through the *Async methods and periodically calling DoWork; the
// Dispatcher and TimeoutScheduler collaborators deliver events from their
// own goroutines, and every work item serializes those events behind its
// own mutex.
package missiontransfer
