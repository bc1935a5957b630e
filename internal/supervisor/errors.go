package supervisor

import "fmt"

// ResourceError reports a failure to set up or tear down the child's
// descriptors or process, for example a failing pipe(2).
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *ResourceError) Unwrap() error { return e.Err }

// LaunchError reports that the program could not be executed at all.
type LaunchError struct {
	Program string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("could not start %s: %v", e.Program, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }
