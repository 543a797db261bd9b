package store

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// deadlockErrorCode and lockWaitTimeoutCode are the MySQL error numbers for
// "Deadlock found when trying to get lock" and "Lock wait timeout
// exceeded", the two failures a transaction retry can resolve.
const (
	deadlockErrorCode   = 1213
	lockWaitTimeoutCode = 1205
)

// IsRetryable reports whether err is a MySQL deadlock or lock-wait-timeout.
// Callers retry the whole transaction a bounded number of times before
// surfacing the conflict to the caller.
func IsRetryable(err error) bool {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	return mysqlErr.Number == deadlockErrorCode || mysqlErr.Number == lockWaitTimeoutCode
}
