package security

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func decodeEvents(t *testing.T, buf *bufferCloser) []AuditEvent {
	t.Helper()
	var events []AuditEvent
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e AuditEvent
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		events = append(events, e)
	}
	return events
}

func TestAuditLoggerWritesJSONLines(t *testing.T) {
	buf := &bufferCloser{}
	al := NewAuditLoggerWithWriter(buf)
	al.now = func() time.Time { return time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC) }

	ctx := context.WithValue(context.Background(), RequestIDKey{}, "req-1")
	require.NoError(t, al.LogAuth(ctx, AuditSignIn, "u1", "a@b.co", nil))
	require.NoError(t, al.LogMutation(ctx, AuditTradesAdded, "u1", "", 3, errors.New("token=abcdef123456 rejected")))

	events := decodeEvents(t, buf)
	require.Len(t, events, 2)

	assert.Equal(t, AuditSignIn, events[0].EventType)
	assert.True(t, events[0].Success)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.NotEmpty(t, events[0].SessionID)
	assert.Equal(t, events[0].SessionID, events[1].SessionID)
	assert.True(t, events[0].Timestamp.Equal(time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)))

	assert.False(t, events[1].Success)
	assert.EqualValues(t, 3, events[1].Details["count"])
	assert.NotContains(t, events[1].ErrorMsg, "abcdef123456")

	require.NoError(t, al.Close())
	assert.True(t, buf.closed)
}

func TestNilAuditLoggerDiscards(t *testing.T) {
	var al *AuditLogger
	assert.NoError(t, al.LogAuth(context.Background(), AuditSignOut, "u1", "", nil))
	assert.NoError(t, al.Close())
}

func TestNewAuditLoggerCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultAuditConfig(dir)

	al, err := NewAuditLogger(cfg)
	require.NoError(t, err)
	defer al.Close()

	assert.NoError(t, al.LogInputValidation(context.Background(), "u1", "qty", "0", "must be positive"))
	assert.DirExists(t, cfg.LogDir)
}

func TestAccessControllerBlocksWritesWhenReadOnly(t *testing.T) {
	buf := &bufferCloser{}
	ac := NewAccessController(true, NewAuditLoggerWithWriter(buf))
	ctx := context.Background()

	assert.NoError(t, ac.CheckPermission(ctx, "u1", OpRead))

	for _, op := range WriteOperations() {
		err := ac.CheckPermission(ctx, "u1", op)
		var roErr *ReadOnlyError
		require.ErrorAs(t, err, &roErr)
		assert.Equal(t, op, roErr.Operation)
	}

	events := decodeEvents(t, buf)
	assert.Len(t, events, len(WriteOperations()))
	assert.Equal(t, AuditReadOnlyViolation, events[0].EventType)

	ac.SetReadOnly(false)
	assert.False(t, ac.IsReadOnly())
	assert.NoError(t, ac.CheckPermission(ctx, "u1", OpDeleteTrade))
}

func TestNilAccessControllerAllowsAll(t *testing.T) {
	var ac *AccessController
	assert.False(t, ac.IsReadOnly())
	assert.NoError(t, ac.CheckPermission(context.Background(), "u1", OpAddTrades))
}

func TestOperationDescription(t *testing.T) {
	assert.Equal(t, "Add trades", OperationDescription(OpAddTrades))
	assert.Equal(t, "CUSTOM", OperationDescription("CUSTOM"))
	assert.True(t, IsWriteOperation(OpImportTrades))
	assert.False(t, IsWriteOperation(OpRead))
}
