package security

import (
	"context"
	"fmt"
	"sync"
)

// OperationType names a journal operation for permission checks.
type OperationType string

const (
	// Read operations
	OpRead OperationType = "READ"

	// Write operations (blocked in read-only mode)
	OpAddTrades    OperationType = "ADD_TRADES"
	OpUpdateTrade  OperationType = "UPDATE_TRADE"
	OpDeleteTrade  OperationType = "DELETE_TRADE"
	OpAttachImage  OperationType = "ATTACH_IMAGE"
	OpDetachImage  OperationType = "DETACH_IMAGE"
	OpImportTrades OperationType = "IMPORT_TRADES"
)

// ReadOnlyError is returned when a write is attempted in read-only mode.
type ReadOnlyError struct {
	Operation OperationType
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("operation %s blocked: read-only mode is enabled", e.Operation)
}

// AccessController gates journal writes behind a read-only switch.
// A nil *AccessController allows everything.
type AccessController struct {
	readOnly bool
	audit    *AuditLogger
	mu       sync.RWMutex
}

// NewAccessController creates a new access controller. audit may be nil.
func NewAccessController(readOnly bool, audit *AuditLogger) *AccessController {
	return &AccessController{
		readOnly: readOnly,
		audit:    audit,
	}
}

// IsReadOnly returns whether read-only mode is enabled.
func (ac *AccessController) IsReadOnly() bool {
	if ac == nil {
		return false
	}
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.readOnly
}

// SetReadOnly sets the read-only mode.
func (ac *AccessController) SetReadOnly(readOnly bool) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.readOnly = readOnly
}

// CheckPermission returns a *ReadOnlyError for writes in read-only mode.
func (ac *AccessController) CheckPermission(ctx context.Context, userID string, op OperationType) error {
	if ac == nil || !IsWriteOperation(op) {
		return nil
	}

	ac.mu.RLock()
	readOnly := ac.readOnly
	ac.mu.RUnlock()
	if !readOnly {
		return nil
	}

	if ac.audit != nil {
		_ = ac.audit.LogReadOnlyViolation(ctx, userID, string(op))
	}
	return &ReadOnlyError{Operation: op}
}

// IsWriteOperation returns true if the operation modifies the journal.
func IsWriteOperation(op OperationType) bool {
	switch op {
	case OpAddTrades, OpUpdateTrade, OpDeleteTrade,
		OpAttachImage, OpDetachImage, OpImportTrades:
		return true
	default:
		return false
	}
}

// WriteOperations returns a list of all write operations.
func WriteOperations() []OperationType {
	return []OperationType{
		OpAddTrades,
		OpUpdateTrade,
		OpDeleteTrade,
		OpAttachImage,
		OpDetachImage,
		OpImportTrades,
	}
}

// OperationDescription returns a human-readable description of an operation.
func OperationDescription(op OperationType) string {
	switch op {
	case OpRead:
		return "Read trades"
	case OpAddTrades:
		return "Add trades"
	case OpUpdateTrade:
		return "Update trade"
	case OpDeleteTrade:
		return "Delete trade"
	case OpAttachImage:
		return "Attach chart image"
	case OpDetachImage:
		return "Detach chart image"
	case OpImportTrades:
		return "Import trades"
	default:
		return string(op)
	}
}
