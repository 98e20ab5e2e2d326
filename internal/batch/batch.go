// Package batch defines how parameterized SQL reaches a data source: a
// batch of commands executed against one named database, answered with
// one row set per command.
package batch

import (
	"context"
	"errors"
	"fmt"
)

type Kind int

const (
	Exec Kind = iota
	Query
)

func (k Kind) String() string {
	if k == Query {
		return "query"
	}
	return "exec"
}

var ErrUnknownDatabase = errors.New("unknown database")

// RowSet is the result of one command. Exec commands only carry
// RowsAffected; for RETURNING inserts both are set.
type RowSet struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
}

type Batch interface {
	Add(kind Kind, query string, args ...any) Batch
	Len() int
	// Execute runs every command in order inside one transaction.
	Execute(ctx context.Context) ([]RowSet, error)
}

type Executor interface {
	NewBatch(database string) Batch
}

// Command is a queued statement.
type Command struct {
	Kind  Kind
	SQL   string
	Args  []any
	Index int
}

// Commands is the common Add/Len half of a Batch.
type Commands struct {
	List []Command
}

func (c *Commands) Append(kind Kind, query string, args []any) {
	c.List = append(c.List, Command{Kind: kind, SQL: query, Args: args, Index: len(c.List)})
}

func (c *Commands) Len() int { return len(c.List) }

// CommandError reports which command of a batch failed.
type CommandError struct {
	Database string
	Index    int
	SQL      string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: command %d (%s): %v", e.Database, e.Index, e.SQL, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Mux routes batches to the executor serving each database.
type Mux map[string]Executor

func (m Mux) NewBatch(database string) Batch {
	if ex, ok := m[database]; ok {
		return ex.NewBatch(database)
	}
	return failed{err: fmt.Errorf("%w: %q", ErrUnknownDatabase, database)}
}

type failed struct{ err error }

func (f failed) Add(Kind, string, ...any) Batch { return f }
func (f failed) Len() int { return 0 }
func (f failed) Execute(context.Context) ([]RowSet, error) { return nil, f.err }
