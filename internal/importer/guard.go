package importer

import (
	"context"

	"trade-journal/internal/models"
	"trade-journal/internal/security"
)

// Guarded runs parse behind the read-only gate and records a parse event on
// the audit trail. access and audit may be nil.
func Guarded(ctx context.Context, access *security.AccessController, audit *security.AuditLogger, uid string, parse func(context.Context) ([]models.TradeDetails, error)) ([]models.TradeDetails, error) {
	if err := access.CheckPermission(ctx, uid, security.OpImportTrades); err != nil {
		return nil, err
	}

	details, err := parse(ctx)
	_ = audit.LogMutation(ctx, security.AuditTradesParsed, uid, "", len(details), err)
	if err != nil {
		return nil, err
	}
	return details, nil
}
