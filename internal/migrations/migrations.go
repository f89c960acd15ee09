// package migrations builds a database schema as an ordered list of statements
// and applies the ones a database has not seen yet.
package migrations

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
)

// State is a schema, described by the statements which produce it.
// States are immutable; Apply methods return a new State.
type State struct {
	parent *State
	stmt   string
	n      int
}

// InitialState is the empty schema.
func InitialState() *State {
	return &State{}
}

// ApplyStmt returns the State produced by running stmt after s.
func (s *State) ApplyStmt(stmt string) *State {
	return &State{parent: s, stmt: stmt, n: s.n + 1}
}

// Version is the number of statements which produce s.
func (s *State) Version() int {
	return s.n
}

// Stmts returns the statements in the order they must run.
func (s *State) Stmts() []string {
	out := make([]string, s.n)
	for x := s; x.n > 0; x = x.parent {
		out[x.n-1] = x.stmt
	}
	return out
}

// Migrate brings db to the desired State.
// The version of a database is kept in its user_version pragma.
// It is an error if the database is newer than desired.
func Migrate(ctx context.Context, db *sqlx.DB, desired *State) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var have int
	if err := tx.GetContext(ctx, &have, `PRAGMA user_version`); err != nil {
		return err
	}
	if have > desired.Version() {
		return fmt.Errorf("migrations: database is at version %d, newer than %d", have, desired.Version())
	}
	if have == desired.Version() {
		return nil
	}
	stmts := desired.Stmts()
	for i := have; i < len(stmts); i++ {
		if _, err := tx.ExecContext(ctx, stmts[i]); err != nil {
			return fmt.Errorf("migrations: applying %d: %w", i+1, err)
		}
	}
	// PRAGMA does not take parameters
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, desired.Version())); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logctx.Info(ctx, "migrated database", zap.Int("from", have), zap.Int("to", desired.Version()))
	return nil
}
