package errs

// ErrorKind identifies a kind of internal error.
// fully support for errors.Is and errors.As.
type ErrorKind string

const (
	// TransientIO is returned when a network or HTTP call keeps failing
	// after its retry budget is exhausted.
	TransientIO = ErrorKind("transient io error")

	// Submission is returned when the chain RPC rejects a transaction
	// after all retries.
	Submission = ErrorKind("transaction submission failed")

	// SenderLookup is returned when the original owner of a custodially
	// staked asset cannot be resolved from transfer history.
	SenderLookup = ErrorKind("sender lookup failed")

	// AlreadyRunning is returned when another instance of the same job
	// holds the run lock.
	AlreadyRunning = ErrorKind("already running")

	// Startup is returned for unrecoverable startup failures (bad config,
	// unreachable mandatory API).
	Startup = ErrorKind("fatal startup error")

	// RunFailed is returned by a job whose run finished, but with one or
	// more recoverable failures along the way.
	RunFailed = ErrorKind("run finished with failures")

	// NotFound is returned when a requested item is not found.
	NotFound = ErrorKind("not found")

	// InvalidArgument is returned when an input fails validation.
	InvalidArgument = ErrorKind("invalid argument")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}
