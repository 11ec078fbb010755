package repository

import (
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/pos_backend/models"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
	mysqlErrLockNowait      = 3572
)

func mysqlErrorNumber(err error) uint16 {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number
	}
	return 0
}

func isDuplicateKeyErr(err error) bool {
	return mysqlErrorNumber(err) == mysqlErrDuplicateEntry
}

func isLockTimeoutErr(err error) bool {
	n := mysqlErrorNumber(err)
	return n == mysqlErrLockWaitTimeout || n == mysqlErrLockNowait
}

// translate maps driver and gorm errors onto the package's sentinel errors.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.ErrRecordNotFound
	case isDuplicateKeyErr(err):
		return ErrDuplicateKey
	case isLockTimeoutErr(err):
		return ErrLockTimeout
	case mysqlErrorNumber(err) == mysqlErrDeadlock:
		return ErrDeadlock
	}
	return err
}
