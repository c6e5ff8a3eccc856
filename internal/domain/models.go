package domain

import "time"

// TransactionSource tags which backing system owns a transaction record and
// therefore which mutation path applies when it is refunded or exchanged.
type TransactionSource string

const (
	SourceLocal TransactionSource = "local"
	SourceCRM   TransactionSource = "crm"
)

const (
	TxStatusCompleted = "completed"
	TxStatusRefunded  = "refunded"
	// Accepted for display only; locator and processors never emit these.
	TxStatusPending   = "pending"
	TxStatusCancelled = "cancelled"
)

// CRMIDPrefix disambiguates CRM-sourced transaction ids from local ids.
const CRMIDPrefix = "CRM-"

type TransactionItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Qty        int    `json:"qty"` // negative denotes a reversing/return line
	Image      string `json:"image,omitempty"`
}

// Transaction is the unified ledger record. Date and Time are kept as separate
// strings ("2006-01-02" and "15:04:05") because receipts, the CRM API and the
// exchange history all round-trip them that way; ordering uses the
// concatenated Date+Time key.
type Transaction struct {
	ID            string            `json:"id"`
	InvoiceNumber string            `json:"invoice_number,omitempty"`
	Date          string            `json:"date"`
	Time          string            `json:"time"`
	SubtotalCents int64             `json:"subtotal_cents"`
	TaxCents      int64             `json:"tax_cents"`
	DiscountCents int64             `json:"discount_cents"`
	TotalCents    int64             `json:"total_cents"`
	Items         []TransactionItem `json:"items"`
	PaymentMethod string            `json:"payment_method"`
	Cashier       string            `json:"cashier"`
	CustomerID    string            `json:"customer_id,omitempty"`
	CustomerName  string            `json:"customer_name,omitempty"`
	CustomerPhone string            `json:"customer_phone,omitempty"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Status        string            `json:"status"`
	Source        TransactionSource `json:"source"`
	CRMInvoiceID  string            `json:"crm_invoice_id,omitempty"`
}

// SortKey returns a lexicographically comparable value built from the split
// date and time strings; newer transactions compare greater.
func (t Transaction) SortKey() string {
	return t.Date + " " + t.Time
}

// DedupKey is the key used when merging local and CRM search results:
// invoice number when present, id otherwise.
func (t Transaction) DedupKey() string {
	if t.InvoiceNumber != "" {
		return t.InvoiceNumber
	}
	return t.ID
}

// SearchParams narrows a refundable-transaction search. Any subset of fields
// may be set; empty fields are ignored.
type SearchParams struct {
	ReceiptNumber string `json:"receipt_number,omitempty"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	CustomerID    string `json:"customer_id,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	DateFrom      string `json:"date_from,omitempty"`
	DateTo        string `json:"date_to,omitempty"`
}

func (p SearchParams) Empty() bool {
	return p.ReceiptNumber == "" && p.InvoiceNumber == "" && p.CustomerID == "" &&
		p.CustomerName == "" && p.Phone == "" && p.Email == "" &&
		p.DateFrom == "" && p.DateTo == ""
}

// RefundRequest is the processor input. Amount defaults to the transaction
// total when zero. IdempotencyKey is optional: when set, a repeated submission
// with the same key returns the recorded result instead of re-dispatching.
type RefundRequest struct {
	TransactionID  string `json:"transaction_id"`
	AmountCents    int64  `json:"amount_cents,omitempty"`
	Reason         string `json:"reason,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	ManagerPIN     string `json:"manager_pin,omitempty"`
}

type RefundResult struct {
	Success   bool   `json:"success"`
	RefundID  string `json:"refund_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// ExchangeEntry names one original item/quantity and one replacement.
type ExchangeEntry struct {
	OriginalItemID        string `json:"original_item_id"`
	OriginalQty           int    `json:"original_qty"`
	ReplacementID         string `json:"replacement_id"`
	ReplacementName       string `json:"replacement_name"`
	ReplacementPriceCents int64  `json:"replacement_price_cents"`
	ReplacementQty        int    `json:"replacement_qty"`
	ReplacementImage      string `json:"replacement_image,omitempty"`
}

// ExchangeItem pairs the resolved original line with its replacement and the
// derived signed price difference (replacement value minus original value).
type ExchangeItem struct {
	Original             TransactionItem `json:"original"`
	Replacement          TransactionItem `json:"replacement"`
	PriceDifferenceCents int64           `json:"price_difference_cents"`
}

const (
	ExchangeStatusPending   = "pending"
	ExchangeStatusCompleted = "completed"
	ExchangeStatusCancelled = "cancelled"
)

// ExchangeTransaction is the audit record appended to the exchange history,
// kept separate from the transaction ledger.
type ExchangeTransaction struct {
	ID                    string         `json:"id"`
	OriginalTransactionID string         `json:"original_transaction_id"`
	Items                 []ExchangeItem `json:"items"`
	TotalDifferenceCents  int64          `json:"total_difference_cents"`
	ExchangeDate          string         `json:"exchange_date"`
	ExchangeTime          string         `json:"exchange_time"`
	Cashier               string         `json:"cashier"`
	Notes                 string         `json:"notes,omitempty"`
	Status                string         `json:"status"`
}

type ExchangeRequest struct {
	TransactionID string          `json:"transaction_id"`
	Entries       []ExchangeEntry `json:"entries"`
	Cashier       string          `json:"cashier"`
	Notes         string          `json:"notes,omitempty"`
	ManagerPIN    string          `json:"manager_pin,omitempty"`
}

type ExchangeResult struct {
	Success    bool                 `json:"success"`
	ExchangeID string               `json:"exchange_id,omitempty"`
	Exchange   *ExchangeTransaction `json:"exchange,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// ExchangeOptions is the pre-confirmation quote for an exchange: positive
// difference means the customer owes more, negative means a refund is due.
type ExchangeOptions struct {
	DifferenceCents   int64 `json:"difference_cents"`
	RequiresPayment   bool  `json:"requires_payment"`
	RefundAmountCents int64 `json:"refund_amount_cents,omitempty"`
}

const (
	ConditionNew       = "new"
	ConditionOpened    = "opened"
	ConditionDamaged   = "damaged"
	ConditionDefective = "defective"
)

// ReturnItem describes one returned unit batch with its assessed condition.
// Only new and opened conditions restock inventory.
type ReturnItem struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Qty        int    `json:"qty"`
	PriceCents int64  `json:"price_cents"`
	Condition  string `json:"condition"`
	Reason     string `json:"reason,omitempty"`
}

func (r ReturnItem) Restockable() bool {
	return r.Condition == ConditionNew || r.Condition == ConditionOpened
}

// ReturnRecord is the persisted outcome of a completed return, read back by
// the analytics derivations.
type ReturnRecord struct {
	ID               string       `json:"id"`
	TransactionID    string       `json:"transaction_id"`
	Items            []ReturnItem `json:"items"`
	ValueCents       int64        `json:"value_cents"`
	Reason           string       `json:"reason,omitempty"`
	InventoryUpdated bool         `json:"inventory_updated"`
	CreatedAt        time.Time    `json:"created_at"`
}

type Product struct {
	ID                string `json:"id"`
	SKU               string `json:"sku,omitempty"`
	Name              string `json:"name"`
	PriceCents        int64  `json:"price_cents"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	Image             string `json:"image,omitempty"`
}

func (p Product) LowStock() bool {
	threshold := p.LowStockThreshold
	if threshold < 1 {
		threshold = 5
	}
	return p.Stock <= threshold
}

// Stock adjustment modes for Repository.UpdateStock.
const (
	StockAdd      = "add"
	StockSubtract = "subtract"
	StockSet      = "set"
)

const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

type ReturnRateReport struct {
	Period           string            `json:"period"`
	SalesCount       int               `json:"sales_count"`
	SalesValueCents  int64             `json:"sales_value_cents"`
	ReturnCount      int               `json:"return_count"`
	ReturnValueCents int64             `json:"return_value_cents"`
	CountRatePct     float64           `json:"count_rate_pct"`
	ValueRatePct     float64           `json:"value_rate_pct"`
	TopReasons       []ReasonFrequency `json:"top_reasons,omitempty"`
}

type ReasonFrequency struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// ImpactedStock surfaces a low-stock product whose shortage was caused or
// worsened by returns that did not restock (damaged/defective units).
type ImpactedStock struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	Stock        int    `json:"stock"`
	ReturnedQty  int    `json:"returned_qty"`
	RestockedQty int    `json:"restocked_qty"`
	LastReturnAt string `json:"last_return_at"`
	LastReason   string `json:"last_reason,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
