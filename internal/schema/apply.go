package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgx/v5/pgconn"

	"graphorm/internal/batch"
	"graphorm/internal/dialect"
	"graphorm/internal/mapping"
)

// ReconcileError reports the statement reconciliation stopped at.
// Statements applied before it stay applied.
type ReconcileError struct {
	Database  string
	Statement Statement
	Err       error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile %s: %s: %v", e.Database, e.Statement.SQL, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

// postgres duplicate_table, duplicate_column, duplicate_object
var duplicateCodes = map[string]bool{"42P07": true, "42701": true, "42710": true}

// IsAlreadyExists reports whether err means the object was created
// concurrently by someone else.
func IsAlreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return duplicateCodes[pgErr.Code]
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "already exists") || strings.Contains(e, "duplicate column")
}

// Apply executes stmts in order, each in its own batch, and returns the
// ones that ran.
func Apply(ctx context.Context, exec batch.Executor, database string, stmts []Statement, log hclog.Logger) ([]Statement, error) {
	var applied []Statement
	for _, st := range stmts {
		log.Debug("ddl", "database", database, "action", st.Action, "table", st.Table, "sql", st.SQL)
		if _, err := exec.NewBatch(database).Add(batch.Exec, st.SQL).Execute(ctx); err != nil {
			if IsAlreadyExists(err) {
				log.Warn("ddl skipped (already exists)", "database", database, "table", st.Table, "error", err)
				continue
			}
			return applied, &ReconcileError{Database: database, Statement: st, Err: err}
		}
		applied = append(applied, st)
	}
	return applied, nil
}

// Manager reconciles databases through a batch executor.
type Manager struct {
	exec batch.Executor
	log  hclog.Logger
}

func NewManager(exec batch.Executor, log hclog.Logger) *Manager {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Manager{exec: exec, log: log.Named("schema")}
}

// Reconcile brings database up to the schema of defs and returns the
// statements it executed.
func (m *Manager) Reconcile(ctx context.Context, database string, d dialect.Dialect, defs []*mapping.Definition) ([]Statement, error) {
	desired := Desired(defs, d)
	live, err := Introspect(ctx, m.exec, database, d)
	if err != nil {
		return nil, err
	}
	stmts := Plan(desired, live, d)
	if len(stmts) == 0 {
		m.log.Debug("schema up to date", "database", database, "tables", len(desired.Tables))
		return nil, nil
	}
	m.log.Info("reconciling schema", "database", database, "statements", len(stmts))
	return Apply(ctx, m.exec, database, stmts, m.log)
}
