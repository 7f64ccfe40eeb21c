package repositories

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/db"
)

func TestGatewayErrorClassifiesTransportFailures(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	for _, err := range []error{dial, driver.ErrBadConn, context.DeadlineExceeded} {
		assert.ErrorIs(t, gatewayError(err), db.ErrBackendUnavailable, "%v", err)
	}
}

func TestGatewayErrorPassesQueryErrorsThrough(t *testing.T) {
	queryErr := errors.New(`pq: syntax error at or near "WHERE"`)
	require.NotErrorIs(t, gatewayError(queryErr), db.ErrBackendUnavailable)
	assert.Equal(t, queryErr, gatewayError(queryErr))
	assert.NoError(t, gatewayError(nil))
}
