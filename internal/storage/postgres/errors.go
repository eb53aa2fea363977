package postgres

import (
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"

	"media_tracker/internal/domain"
)

// transientClasses are the SQLSTATE classes that describe an unavailable
// or contended server rather than a bad statement.
var transientClasses = map[pq.ErrorClass]bool{
	"08": true, // connection exception
	"40": true, // transaction rollback, serialization failure, deadlock
	"53": true, // insufficient resources
	"57": true, // operator intervention, admin shutdown
	"58": true, // system error
}

// classify wraps connectivity and contention failures in a TransientError
// and returns every other error unchanged.
func classify(op string, err error) error {
	if err == nil || domain.IsTransient(err) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if transientClasses[pqErr.Code.Class()] {
			return &domain.TransientError{Op: op, Err: err}
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return &domain.TransientError{Op: op, Err: err}
	}
	return err
}
