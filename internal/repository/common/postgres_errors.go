package common

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/Taichi-iskw/ytscribe/internal/errors"
)

// HandlePostgreSQLError converts PostgreSQL-specific errors to appropriate AppError codes
func HandlePostgreSQLError(err error, operation string) *apperrors.AppError {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		var connErr *pgconn.ConnectError
		if errors.As(err, &connErr) {
			return apperrors.Wrap(err, apperrors.CodeUnavailable, "database connection error")
		}
		return apperrors.Wrap(err, apperrors.CodeInternal, operation)
	}

	switch pgErr.Code {
	case "23505": // UNIQUE_VIOLATION
		return handleUniqueViolation(err, pgErr.ConstraintName)

	case "23503": // FOREIGN_KEY_VIOLATION
		return apperrors.Wrap(err, apperrors.CodeDependency, "referenced transcript does not exist")

	case "23502": // NOT_NULL_VIOLATION
		return apperrors.Wrap(err, apperrors.CodeInvalidArg, "required field is missing")

	case "23514": // CHECK_VIOLATION
		return apperrors.Wrap(err, apperrors.CodeInvalidArg, "data violates check constraint")

	case "42P01": // UNDEFINED_TABLE
		return apperrors.Wrap(err, apperrors.CodeInternal, "database schema error: table not found (run 'ytscribe migrate up')")

	case "42703": // UNDEFINED_COLUMN
		return apperrors.Wrap(err, apperrors.CodeInternal, "database schema error: column not found")

	case "08000", "08001", "08003", "08004", "08006", "57P01", "57P03":
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "database connection error")

	case "53300": // TOO_MANY_CONNECTIONS
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "database connection limit reached")

	default:
		message := operation + " (PostgreSQL code: " + pgErr.Code + ")"
		return apperrors.Wrap(err, apperrors.CodeInternal, message)
	}
}

func handleUniqueViolation(err error, constraint string) *apperrors.AppError {
	switch {
	case strings.Contains(constraint, "video_id"):
		return apperrors.Wrap(err, apperrors.CodeConflict, "transcript for this video already exists")
	case strings.Contains(constraint, "pkey"):
		return apperrors.Wrap(err, apperrors.CodeConflict, "transcript with this ID already exists")
	default:
		return apperrors.Wrap(err, apperrors.CodeConflict, "resource already exists")
	}
}
