package pgxdriver

import (
	"errors"
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// CheckValidationQuery accepts exactly one SELECT statement
func CheckValidationQuery(query string) error {
	result, err := pg_query.Parse(query)
	if err != nil {
		return fmt.Errorf("parse validation query: %w", err)
	}
	if len(result.Stmts) != 1 {
		return fmt.Errorf("validation query must be a single statement, got %d", len(result.Stmts))
	}
	if result.Stmts[0].GetStmt().GetSelectStmt() == nil {
		return errors.New("validation query must be a SELECT statement")
	}
	return nil
}
