package database

import (
	"errors"
	"strings"

	"innkeeper/internal/domain"

	"github.com/mattn/go-sqlite3"
)

func sqliteError(err error) (sqlite3.Error, bool) {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se, true
	}
	return se, false
}

func isUniqueViolation(err error) bool {
	se, ok := sqliteError(err)
	return ok && (se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

// isStatusConstraint reports CHECK failures and trigger aborts, the two ways a
// schema can refuse a status value.
func isStatusConstraint(err error) bool {
	se, ok := sqliteError(err)
	return ok && (se.ExtendedCode == sqlite3.ErrConstraintCheck || se.ExtendedCode == sqlite3.ErrConstraintTrigger)
}

func isForeignKeyViolation(err error) bool {
	se, ok := sqliteError(err)
	return ok && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// mapConstraintError turns driver constraint failures into domain errors and
// leaves everything else untouched.
func mapConstraintError(err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		if strings.Contains(err.Error(), "confirmation_code") {
			return errors.Join(domain.ErrDuplicateConfirmationCode, err)
		}
		return errors.Join(domain.ErrDuplicate, err)
	case isStatusConstraint(err):
		if strings.Contains(err.Error(), "check_out_date") {
			return errors.Join(domain.ErrInvalidDateRange, err)
		}
		return errors.Join(domain.ErrStatusRejected, err)
	default:
		return err
	}
}
