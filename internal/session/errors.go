package session

import (
	"errors"
	"fmt"
)

var (
	ErrUnmapped           = errors.New("type is not mapped")
	ErrDeleted            = errors.New("entity was deleted in this session")
	ErrTransient          = errors.New("entity has no key")
	ErrTransientReference = errors.New("reference to an unsaved entity without cascade")
	ErrMissingKey         = errors.New("key must be assigned before insert")
	ErrStaleEntity        = errors.New("entity no longer exists")
	ErrKeyType            = errors.New("key type does not match the identity")
	ErrInvalidPage        = errors.New("page must not be negative")
	ErrUpdateNotAllowed   = errors.New("database does not allow updates")
	ErrNotReadable        = errors.New("database is not readable")
	ErrNotWritable        = errors.New("database is not writable")
)

// OpError wraps a failed statement with the entity and operation it
// belonged to. Op is one of insert, update, delete, select, link.
type OpError struct {
	Entity string
	Op     string
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
