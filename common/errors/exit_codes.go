package errors

type ExitCode int

const (
	GenericFailureExitCode ExitCode = 1

	// Exit codes recorded for processes that never ran their command.
	CouldNotCreateLogExitCode ExitCode = 100
	CouldNotExecExitCode      ExitCode = 110

	// Exit code recorded when the process was terminated by a signal.
	SignaledExitCode ExitCode = -1
)
