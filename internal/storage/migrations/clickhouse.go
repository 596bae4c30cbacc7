package migrations

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ClickhouseDB executes one statement at a time; the native driver rejects
// multi-statement queries.
type ClickhouseDB interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// ApplyClickhouse runs every embedded ClickHouse migration against the
// connected database. Statements must be idempotent (IF NOT EXISTS), since
// ClickHouse has no transactional DDL to record versions against.
func ApplyClickhouse(ctx context.Context, db ClickhouseDB) ([]string, error) {
	all, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range all {
		if err := validateNoSemicolonInStrings(m.sql); err != nil {
			return applied, fmt.Errorf("validate migration %s: %w", m.name, err)
		}
		for _, stmt := range splitStatements(m.sql) {
			if err := db.Exec(ctx, stmt); err != nil {
				return applied, fmt.Errorf("apply migration %s: %w", m.name, err)
			}
		}
		applied = append(applied, m.name)
	}
	return applied, nil
}

// splitStatements drops -- comment lines and splits on semicolons. It does
// not understand quoting, so migrations must keep semicolons out of string
// literals and block comments; validateNoSemicolonInStrings enforces the
// first rule.
func splitStatements(input string) []string {
	var lines []string
	for _, line := range strings.Split(input, "\n") {
		if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "--") {
			lines = append(lines, line)
		}
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(lines, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

var errSemicolonInString = errors.New("semicolon inside a string literal")

// validateNoSemicolonInStrings rejects SQL with ';' inside single quotes.
// Doubled quotes ('') are escapes.
func validateNoSemicolonInStrings(sql string) error {
	quoted := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if quoted && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			quoted = !quoted
		case ';':
			if quoted {
				return fmt.Errorf("%w at offset %d", errSemicolonInString, i)
			}
		}
	}
	return nil
}
