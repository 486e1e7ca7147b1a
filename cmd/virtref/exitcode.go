package main

// exitCodeError carries a process exit code for usage-level failures,
// so run() callers can distinguish bad invocations (exit 2) from
// operational errors (exit 1).
type exitCodeError struct {
	code int
	msg  string
}

func (e *exitCodeError) Error() string {
	return e.msg
}

func (e *exitCodeError) ExitCode() int {
	return e.code
}
