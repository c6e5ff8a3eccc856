package store

import (
	"context"
	"errors"

	"returndesk/backend/internal/domain"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrAlreadyDone    = errors.New("already processed")
)

// Repository is the local backing store consumed by the returns service: the
// transaction ledger, the product inventory, completed return records and the
// audit trail. CRM-owned records never live here; only compensating entries
// mirrored from successful CRM reversals do.
type Repository interface {
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	AddTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	// RefundTransaction flips a completed transaction to refunded and appends
	// the reversing entry; ErrAlreadyDone when the transaction was refunded
	// before.
	RefundTransaction(ctx context.Context, id string, amountCents int64) (*domain.Transaction, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByIDOrName(ctx context.Context, idOrName string) (*domain.Product, error)
	UpdateStock(ctx context.Context, productID string, qty int, mode string) (*domain.Product, error)
	GetLowStockProducts(ctx context.Context) ([]domain.Product, error)

	CreateReturnRecord(ctx context.Context, record domain.ReturnRecord) (*domain.ReturnRecord, error)
	ListReturnRecords(ctx context.Context) ([]domain.ReturnRecord, error)
	SetReturnInventoryUpdated(ctx context.Context, returnID string, updated bool) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
