package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"returndesk/backend/internal/domain"
	"returndesk/backend/internal/store"
	"returndesk/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	transactions    []domain.Transaction
	transactionIdx  map[string]int
	products        map[string]domain.Product
	productOrder    []string
	returnsByID     map[string]domain.ReturnRecord
	returnOrder     []string
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These are never used
// in production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		transactionIdx:  make(map[string]int),
		products:        make(map[string]domain.Product),
		returnsByID:     make(map[string]domain.ReturnRecord),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()

	products := []domain.Product{
		{ID: "P-ESPRESSO-01", SKU: "ESP-01", Name: "Espresso Machine Descaler", PriceCents: 1250, Stock: 40, LowStockThreshold: 8},
		{ID: "P-MUG-01", SKU: "MUG-01", Name: "Ceramic Mug 350ml", PriceCents: 899, Stock: 60, LowStockThreshold: 10},
		{ID: "P-TSHIRT-01", SKU: "TSH-01", Name: "Staff T-Shirt M", PriceCents: 1599, Stock: 25, LowStockThreshold: 5},
		{ID: "P-GRINDER-01", SKU: "GRD-01", Name: "Hand Coffee Grinder", PriceCents: 4250, Stock: 12, LowStockThreshold: 4},
		{ID: "P-BEANS-01", SKU: "BNS-01", Name: "House Blend Beans 1kg", PriceCents: 2199, Stock: 80, LowStockThreshold: 15},
		{ID: "P-TUMBLER-01", SKU: "TMB-01", Name: "Travel Tumbler 500ml", PriceCents: 1850, Stock: 30, LowStockThreshold: 6},
		{ID: "P-APRON-01", SKU: "APR-01", Name: "Canvas Apron", PriceCents: 2450, Stock: 18, LowStockThreshold: 5},
		{ID: "P-KETTLE-01", SKU: "KTL-01", Name: "Gooseneck Kettle 1L", PriceCents: 5600, Stock: 8, LowStockThreshold: 3},
	}
	for _, p := range products {
		s.products[p.ID] = p
		s.productOrder = append(s.productOrder, p.ID)
	}

	return s
}

func (s *Store) ListTransactions(_ context.Context) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, len(s.transactions))
	for i, tx := range s.transactions {
		result[i] = cloneTransaction(tx)
	}
	return result, nil
}

func (s *Store) GetTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.transactionIdx[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	tx := cloneTransaction(s.transactions[idx])
	return &tx, nil
}

func (s *Store) AddTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactionIdx[tx.ID]; exists {
		return nil, fmt.Errorf("%w: duplicate transaction id %s", store.ErrInvalidRequest, tx.ID)
	}

	s.transactionIdx[tx.ID] = len(s.transactions)
	s.transactions = append(s.transactions, cloneTransaction(tx))
	created := cloneTransaction(tx)
	return &created, nil
}

// RefundTransaction flips the original to refunded and appends a reversing
// entry with negated totals and line quantities. The reversing entry is
// returned to the caller.
func (s *Store) RefundTransaction(_ context.Context, id string, amountCents int64) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.transactionIdx[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	original := s.transactions[idx]
	if original.Status == domain.TxStatusRefunded {
		return nil, store.ErrAlreadyDone
	}
	if original.Status != domain.TxStatusCompleted {
		return nil, fmt.Errorf("%w: transaction %s has status %s", store.ErrInvalidRequest, id, original.Status)
	}
	if amountCents <= 0 || amountCents > original.TotalCents {
		return nil, fmt.Errorf("%w: refund amount %d out of range", store.ErrInvalidRequest, amountCents)
	}

	s.transactions[idx].Status = domain.TxStatusRefunded

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
	s.transactionIdx[reversing.ID] = len(s.transactions)
	s.transactions = append(s.transactions, cloneTransaction(reversing))

	result := cloneTransaction(reversing)
	return &result, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		products = append(products, s.products[id])
	}
	return products, nil
}

// GetProductByIDOrName matches by id first, then by case-insensitive exact
// name. Return items often arrive with only a display name attached.
func (s *Store) GetProductByIDOrName(_ context.Context, idOrName string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.products[idOrName]; ok {
		product := p
		return &product, nil
	}
	for _, p := range s.products {
		if strings.EqualFold(p.Name, idOrName) {
			product := p
			return &product, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateStock(_ context.Context, productID string, qty int, mode string) (*domain.Product, error) {
	if qty < 0 {
		return nil, store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}

	switch mode {
	case domain.StockAdd:
		p.Stock += qty
	case domain.StockSubtract:
		p.Stock -= qty
		if p.Stock < 0 {
			p.Stock = 0
		}
	case domain.StockSet:
		p.Stock = qty
	default:
		return nil, fmt.Errorf("%w: unknown stock mode %q", store.ErrInvalidRequest, mode)
	}

	s.products[productID] = p
	updated := p
	return &updated, nil
}

func (s *Store) GetLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	low := make([]domain.Product, 0, 8)
	for _, id := range s.productOrder {
		if p := s.products[id]; p.LowStock() {
			low = append(low, p)
		}
	}
	return low, nil
}

func (s *Store) CreateReturnRecord(_ context.Context, record domain.ReturnRecord) (*domain.ReturnRecord, error) {
	if record.ID == "" {
		record.ID = xid.New("ret")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.returnsByID[record.ID]; exists {
		return nil, fmt.Errorf("%w: duplicate return id %s", store.ErrInvalidRequest, record.ID)
	}
	s.returnsByID[record.ID] = cloneReturnRecord(record)
	s.returnOrder = append(s.returnOrder, record.ID)

	created := cloneReturnRecord(record)
	return &created, nil
}

func (s *Store) ListReturnRecords(_ context.Context) ([]domain.ReturnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ReturnRecord, 0, len(s.returnOrder))
	for _, id := range s.returnOrder {
		result = append(result, cloneReturnRecord(s.returnsByID[id]))
	}
	return result, nil
}

func (s *Store) SetReturnInventoryUpdated(_ context.Context, returnID string, updated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.returnsByID[returnID]
	if !ok {
		return store.ErrNotFound
	}
	record.InventoryUpdated = updated
	s.returnsByID[returnID] = record
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, len(s.auditLogs))
	copy(result, s.auditLogs)
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: username %s taken", store.ErrInvalidRequest, username)
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneTransaction(tx domain.Transaction) domain.Transaction {
	cloned := tx
	cloned.Items = make([]domain.TransactionItem, len(tx.Items))
	copy(cloned.Items, tx.Items)
	return cloned
}

func cloneReturnRecord(record domain.ReturnRecord) domain.ReturnRecord {
	cloned := record
	cloned.Items = make([]domain.ReturnItem, len(record.Items))
	copy(cloned.Items, record.Items)
	return cloned
}

func negateItems(items []domain.TransactionItem) []domain.TransactionItem {
	negated := make([]domain.TransactionItem, len(items))
	for i, item := range items {
		negated[i] = item
		negated[i].Qty = -item.Qty
	}
	return negated
}
