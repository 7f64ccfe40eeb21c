package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"messaging-service/internal/db"
)

// ErrNotParticipant rejects access to a conversation the user is not part of.
var ErrNotParticipant = errors.New("not a conversation participant")

// gatewayError classifies transport-level failures as
// db.ErrBackendUnavailable so callers can tell an unreachable backend apart
// from a query-level failure. Everything else passes through unchanged.
func gatewayError(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", db.ErrBackendUnavailable, err)
	}
	return err
}
