package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"returndesk/backend/internal/domain"
	"returndesk/backend/internal/store"
	"returndesk/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const transactionColumns = `
	id, invoice_number, tx_date, tx_time, subtotal_cents, tax_cents,
	discount_cents, total_cents, items, payment_method, cashier,
	customer_id, customer_name, customer_phone, customer_email,
	status, source, crm_invoice_id
`

func (s *Store) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		ORDER BY tx_date DESC, tx_time DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, 128)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (s *Store) GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1
	`, id)

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (s *Store) AddTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusCompleted
	}
	if tx.Source == "" {
		tx.Source = domain.SourceLocal
	}
	now := time.Now().UTC()
	if tx.Date == "" {
		tx.Date = now.Format("2006-01-02")
	}
	if tx.Time == "" {
		tx.Time = now.Format("15:04:05")
	}

	itemsJSON, err := json.Marshal(tx.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, invoice_number, tx_date, tx_time, subtotal_cents, tax_cents,
			discount_cents, total_cents, items, payment_method, cashier,
			customer_id, customer_name, customer_phone, customer_email,
			status, source, crm_invoice_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now())
	`, tx.ID, nullIfEmpty(tx.InvoiceNumber), tx.Date, tx.Time, tx.SubtotalCents, tx.TaxCents,
		tx.DiscountCents, tx.TotalCents, itemsJSON, tx.PaymentMethod, tx.Cashier,
		nullIfEmpty(tx.CustomerID), nullIfEmpty(tx.CustomerName), nullIfEmpty(tx.CustomerPhone),
		nullIfEmpty(tx.CustomerEmail), tx.Status, string(tx.Source), nullIfEmpty(tx.CRMInvoiceID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: duplicate transaction id %s", store.ErrInvalidRequest, tx.ID)
		}
		return nil, err
	}

	created := tx
	return &created, nil
}

// RefundTransaction runs inside one database transaction: the status flip and
// the reversing entry either both land or neither does.
func (s *Store) RefundTransaction(ctx context.Context, id string, amountCents int64) (*domain.Transaction, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dbTx.Rollback() }()

	row := dbTx.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, id)
	original, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if original.Status == domain.TxStatusRefunded {
		return nil, store.ErrAlreadyDone
	}
	if original.Status != domain.TxStatusCompleted {
		return nil, fmt.Errorf("%w: transaction %s has status %s", store.ErrInvalidRequest, id, original.Status)
	}
	if amountCents <= 0 || amountCents > original.TotalCents {
		return nil, fmt.Errorf("%w: refund amount %d out of range", store.ErrInvalidRequest, amountCents)
	}

	if _, err := dbTx.ExecContext(ctx, `
		UPDATE transactions SET status = $2 WHERE id = $1
	`, id, domain.TxStatusRefunded); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	reversing := domain.Transaction{
		ID:            xid.New("tx"),
		Date:          now.Format("2006-01-02"),
		Time:          now.Format("15:04:05"),
		SubtotalCents: -original.SubtotalCents,
		TaxCents:      -original.TaxCents,
		DiscountCents: -original.DiscountCents,
		TotalCents:    -amountCents,
		Items:         negateItems(original.Items),
		PaymentMethod: "Refund",
		Cashier:       original.Cashier,
		CustomerID:    original.CustomerID,
		CustomerName:  original.CustomerName,
		Status:        domain.TxStatusRefunded,
		Source:        domain.SourceLocal,
	}
	itemsJSON, err := json.Marshal(reversing.Items)
	if err != nil {
		return nil, err
	}
	if _, err := dbTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, invoice_number, tx_date, tx_time, subtotal_cents, tax_cents,
			discount_cents, total_cents, items, payment_method, cashier,
			customer_id, customer_name, customer_phone, customer_email,
			status, source, crm_invoice_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now())
	`, reversing.ID, nil, reversing.Date, reversing.Time, reversing.SubtotalCents, reversing.TaxCents,
		reversing.DiscountCents, reversing.TotalCents, itemsJSON, reversing.PaymentMethod, reversing.Cashier,
		nullIfEmpty(reversing.CustomerID), nullIfEmpty(reversing.CustomerName), nil, nil,
		reversing.Status, string(reversing.Source), nil); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		return nil, err
	}
	return &reversing, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, price_cents, stock, low_stock_threshold, image
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByIDOrName(ctx context.Context, idOrName string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sku, name, price_cents, stock, low_stock_threshold, image
		FROM products
		WHERE id = $1 OR lower(name) = lower($1)
		LIMIT 1
	`, idOrName)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateStock(ctx context.Context, productID string, qty int, mode string) (*domain.Product, error) {
	if qty < 0 {
		return nil, store.ErrInvalidRequest
	}

	var query string
	switch mode {
	case domain.StockAdd:
		query = `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`
	case domain.StockSubtract:
		query = `UPDATE products SET stock = GREATEST(stock - $2, 0), updated_at = now() WHERE id = $1`
	case domain.StockSet:
		query = `UPDATE products SET stock = $2, updated_at = now() WHERE id = $1`
	default:
		return nil, fmt.Errorf("%w: unknown stock mode %q", store.ErrInvalidRequest, mode)
	}

	res, err := s.db.ExecContext(ctx, query, productID, qty)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProductByIDOrName(ctx, productID)
}

func (s *Store) GetLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, price_cents, stock, low_stock_threshold, image
		FROM products
		WHERE stock <= GREATEST(low_stock_threshold, 5)
		ORDER BY stock, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateReturnRecord(ctx context.Context, record domain.ReturnRecord) (*domain.ReturnRecord, error) {
	if record.ID == "" {
		record.ID = xid.New("ret")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	itemsJSON, err := json.Marshal(record.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO return_records (id, transaction_id, items, value_cents, reason, inventory_updated, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, record.ID, record.TransactionID, itemsJSON, record.ValueCents,
		nullIfEmpty(record.Reason), record.InventoryUpdated, record.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: duplicate return id %s", store.ErrInvalidRequest, record.ID)
		}
		return nil, err
	}

	created := record
	return &created, nil
}

func (s *Store) ListReturnRecords(ctx context.Context) ([]domain.ReturnRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, items, value_cents, reason, inventory_updated, created_at
		FROM return_records
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.ReturnRecord, 0, 64)
	for rows.Next() {
		var record domain.ReturnRecord
		var itemsRaw []byte
		var reason sql.NullString
		if err := rows.Scan(&record.ID, &record.TransactionID, &itemsRaw, &record.ValueCents,
			&reason, &record.InventoryUpdated, &record.CreatedAt); err != nil {
			return nil, err
		}
		record.CreatedAt = record.CreatedAt.UTC()
		record.Reason = reason.String
		if len(itemsRaw) > 0 {
			if err := json.Unmarshal(itemsRaw, &record.Items); err != nil {
				return nil, err
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) SetReturnInventoryUpdated(ctx context.Context, returnID string, updated bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE return_records SET inventory_updated = $2 WHERE id = $1
	`, returnID, updated)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidRequest
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username %s taken", store.ErrInvalidRequest, username)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var tx domain.Transaction
	var itemsRaw []byte
	var invoiceNumber, customerID, customerName, customerPhone, customerEmail, crmInvoiceID sql.NullString
	var source string

	err := row.Scan(&tx.ID, &invoiceNumber, &tx.Date, &tx.Time, &tx.SubtotalCents, &tx.TaxCents,
		&tx.DiscountCents, &tx.TotalCents, &itemsRaw, &tx.PaymentMethod, &tx.Cashier,
		&customerID, &customerName, &customerPhone, &customerEmail,
		&tx.Status, &source, &crmInvoiceID)
	if err != nil {
		return domain.Transaction{}, err
	}

	tx.InvoiceNumber = invoiceNumber.String
	tx.CustomerID = customerID.String
	tx.CustomerName = customerName.String
	tx.CustomerPhone = customerPhone.String
	tx.CustomerEmail = customerEmail.String
	tx.CRMInvoiceID = crmInvoiceID.String
	tx.Source = domain.TransactionSource(source)
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &tx.Items); err != nil {
			return domain.Transaction{}, err
		}
	}
	return tx, nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var sku, image sql.NullString
	err := row.Scan(&p.ID, &sku, &p.Name, &p.PriceCents, &p.Stock, &p.LowStockThreshold, &image)
	if err != nil {
		return domain.Product{}, err
	}
	p.SKU = sku.String
	p.Image = image.String
	return p, nil
}

func negateItems(items []domain.TransactionItem) []domain.TransactionItem {
	negated := make([]domain.TransactionItem, len(items))
	for i, item := range items {
		negated[i] = item
		negated[i].Qty = -item.Qty
	}
	return negated
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
