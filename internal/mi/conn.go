// Package mi talks to GDB over its machine interface.
//
// Conn is the narrow capability the debug session depends on: send one
// command and receive its result record, plus a stream of out-of-band
// records (exec/notify async records and console output). Client is the
// implementation backed by a gdb child process; Facade serializes commands
// and offers typed helpers for the commands the session issues.
package mi

import "context"

// Conn is a GDB MI connection
type Conn interface {
	// Send issues command and waits for its result record. An ^error reply
	// is returned as an error carrying gdb's message.
	Send(ctx context.Context, command string) (*Record, error)

	// Events delivers every record that is not a command result, in order
	Events() <-chan *Record

	// Close terminates the connection
	Close() error
}
