/*
Package log provides structured logging for the auth core using zerolog.

The package wraps zerolog to give JSON-structured logging with
component-specific child loggers, a configurable level, and a handful of
helper functions for the common cases (Info, Warn, Error, Fatal).

# Configuration

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

When JSONOutput is false, logs render through zerolog's ConsoleWriter
instead, which is friendlier for interactive `authd` sessions.

# Child loggers

Two domain-specific child loggers carry the fields the auth core cares
about when correlating log lines with a request:

	log.WithUsername("alice")
	log.WithProposalID(proposalID)

WithComponent is the general-purpose one, for tagging log lines with a
subsystem name.

# Fatal errors

Failures reading or decoding persisted user and role records are
treated as corrupted state and call log.Fatal, matching the rest of the
ambient stack's "fatal means abort" convention. Errors from the lease
lookup are not fatal: Core.GetLease returns them to its caller.
*/
package log
