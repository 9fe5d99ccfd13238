package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/NightOwlRecon/IntriCase/domain"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return domain.WrapError(domain.ErrCodePersistence, op, err)
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
