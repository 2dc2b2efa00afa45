package loader

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/salesetl/internal/core"
)

// PostgreSQL SQLSTATE codes mapped to load error codes.
const (
	sqlstateUniqueViolation     = "23505"
	sqlstateForeignKeyViolation = "23503"
	sqlstateNotNullViolation    = "23502"
	sqlstateClassConnection     = "08"
	sqlstateClassSyntax         = "42"
)

// classify wraps err in a *core.LoadError whose code reflects the
// PostgreSQL failure class.
func classify(op, table string, err error) error {
	var le *core.LoadError
	if errors.As(err, &le) {
		return err
	}

	code := core.CodeLoadFailed

	var pgErr *pgconn.PgError
	var connErr *pgconn.ConnectError
	switch {
	case errors.As(err, &pgErr):
		switch {
		case pgErr.Code == sqlstateUniqueViolation:
			code = core.CodeDuplicateKey
		case pgErr.Code == sqlstateForeignKeyViolation:
			code = core.CodeForeignKey
		case pgErr.Code == sqlstateNotNullViolation:
			code = core.CodeNotNull
		case strings.HasPrefix(pgErr.Code, sqlstateClassConnection):
			code = core.CodeConnection
		case strings.HasPrefix(pgErr.Code, sqlstateClassSyntax):
			code = core.CodeSchema
		}
		if table == "" {
			table = pgErr.TableName
		}
	case errors.As(err, &connErr):
		code = core.CodeConnection
	}

	return &core.LoadError{Op: op, Table: table, Code: code, Err: err}
}
