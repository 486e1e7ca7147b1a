package combine

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when combine is called with no stores.
var ErrEmptyInput = errors.New("combine: no input stores")

// IdentityMismatchError reports that an array which must agree across
// inputs differs between two of them. First and Conflict are 0-based
// positions in the input store list.
type IdentityMismatchError struct {
	Array    string
	Field    string
	First    int
	Conflict int
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("combine: array %q: %s differs between store %d and store %d",
		e.Array, e.Field, e.First, e.Conflict)
}

// AmbiguousVariableError reports an array that diverges across inputs
// without being concatenated or declared identical. The engine refuses
// to pick a winner silently.
type AmbiguousVariableError struct {
	Array    string
	First    int
	Conflict int
}

func (e *AmbiguousVariableError) Error() string {
	return fmt.Sprintf("combine: array %q differs between store %d and store %d and is neither concatenated nor declared identical",
		e.Array, e.First, e.Conflict)
}
