package profilesync

import "fmt"

// PersistenceError reports a failed store read or write. Local state is kept
// as it was when the error occurred.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s profile: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
