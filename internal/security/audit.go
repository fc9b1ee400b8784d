package security

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	// Authentication events
	AuditSignUp        AuditEventType = "SIGN_UP"
	AuditSignIn        AuditEventType = "SIGN_IN"
	AuditSignOut       AuditEventType = "SIGN_OUT"
	AuditEmailVerified AuditEventType = "EMAIL_VERIFIED"
	AuditAuthFailed    AuditEventType = "AUTH_FAILED"

	// Journal events
	AuditTradesAdded   AuditEventType = "TRADES_ADDED"
	AuditTradeUpdated  AuditEventType = "TRADE_UPDATED"
	AuditTradeDeleted  AuditEventType = "TRADE_DELETED"
	AuditImageAttached AuditEventType = "IMAGE_ATTACHED"
	AuditImageDetached AuditEventType = "IMAGE_DETACHED"
	AuditTradesParsed  AuditEventType = "TRADES_PARSED"

	// Security events
	AuditReadOnlyViolation AuditEventType = "READ_ONLY_VIOLATION"
	AuditInputValidation   AuditEventType = "INPUT_VALIDATION"
)

// RequestIDKey is the context key under which a request id may be stored.
type RequestIDKey struct{}

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType AuditEventType         `json:"event_type"`
	UserID    string                 `json:"user_id,omitempty"`
	Email     string                 `json:"email,omitempty"`
	TradeID   string                 `json:"trade_id,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Success   bool                   `json:"success"`
	ErrorMsg  string                 `json:"error,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// AuditLogger appends audit events as JSON lines.
type AuditLogger struct {
	writer    io.WriteCloser
	mu        sync.Mutex
	sessionID string
	now       func() time.Time
}

// AuditConfig holds audit logger configuration.
type AuditConfig struct {
	LogDir     string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultAuditConfig returns the default audit configuration under configDir.
func DefaultAuditConfig(configDir string) AuditConfig {
	return AuditConfig{
		LogDir:     filepath.Join(configDir, "audit"),
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365, // Keep audit logs for 1 year
		Compress:   true,
	}
}

// NewAuditLogger creates an audit logger writing to a rotating file.
func NewAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	// Ensure audit directory exists with restricted permissions
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "audit.log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	return NewAuditLoggerWithWriter(writer), nil
}

// NewAuditLoggerWithWriter creates an audit logger writing to w.
func NewAuditLoggerWithWriter(w io.WriteCloser) *AuditLogger {
	return &AuditLogger{
		writer:    w,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
}

// Log logs an audit event. A nil logger discards events.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if al == nil {
		return nil
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	// Set common fields
	event.Timestamp = al.now().UTC()
	event.SessionID = al.sessionID
	if reqID, ok := ctx.Value(RequestIDKey{}).(string); ok {
		event.RequestID = reqID
	}
	if event.ErrorMsg != "" {
		event.ErrorMsg = MaskSensitive(event.ErrorMsg)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}

	// Write with newline
	if _, err := al.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}

	return nil
}

// LogAuth logs an authentication event.
func (al *AuditLogger) LogAuth(ctx context.Context, eventType AuditEventType, userID, email string, err error) error {
	event := AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		Success:   err == nil,
	}
	if err != nil {
		event.ErrorMsg = err.Error()
	}
	return al.Log(ctx, event)
}

// LogMutation logs a journal write.
func (al *AuditLogger) LogMutation(ctx context.Context, eventType AuditEventType, userID, tradeID string, count int, err error) error {
	event := AuditEvent{
		EventType: eventType,
		UserID:    userID,
		TradeID:   tradeID,
		Success:   err == nil,
	}
	if count > 0 {
		event.Details = map[string]interface{}{"count": count}
	}
	if err != nil {
		event.ErrorMsg = err.Error()
	}
	return al.Log(ctx, event)
}

// LogReadOnlyViolation logs an attempt to perform a write operation in read-only mode.
func (al *AuditLogger) LogReadOnlyViolation(ctx context.Context, userID, operation string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditReadOnlyViolation,
		UserID:    userID,
		Action:    operation,
		Success:   false,
		ErrorMsg:  "operation blocked: read-only mode enabled",
	})
}

// LogInputValidation logs an input validation failure.
func (al *AuditLogger) LogInputValidation(ctx context.Context, userID, field, value, reason string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditInputValidation,
		UserID:    userID,
		Success:   false,
		ErrorMsg:  reason,
		Details: map[string]interface{}{
			"field": field,
			"value": MaskSensitive(value),
		},
	})
}

// Close closes the audit logger.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}
	return al.writer.Close()
}
