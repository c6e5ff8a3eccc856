package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"returndesk/backend/internal/crm"
	"returndesk/backend/internal/domain"
	"returndesk/backend/internal/history"
	"returndesk/backend/internal/returns"
	"returndesk/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real returns service so handler tests exercise the complete request path.
// The CRM client is unconfigured, so searches run local-only.
func newTestAPI(t *testing.T) (*API, *memory.Store) {
	t.Helper()

	repo := memory.NewSeeded()
	gateway := crm.NewClient("", "", time.Second)
	svc := returns.New(repo, gateway, history.NewMemoryStore(), returns.Options{})
	auth := NewAuthManager("test-secret-key", time.Hour, "903471", repo)

	return New(svc, auth, "*"), repo
}

func seedTransaction(t *testing.T, repo *memory.Store, tx domain.Transaction) {
	t.Helper()
	if _, err := repo.AddTransaction(context.Background(), tx); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestLoginSuccessAndFailure(t *testing.T) {
	api, _ := newTestAPI(t)

	token := loginAsAdmin(t, api)
	if token == "" {
		t.Fatalf("expected token")
	}

	payload, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}
}

func TestSearchRequiresAuth(t *testing.T) {
	api, _ := newTestAPI(t)

	payload, _ := json.Marshal(domain.SearchParams{CustomerName: "anyone"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/search", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	api, repo := newTestAPI(t)
	seedTransaction(t, repo, domain.Transaction{
		ID:           "T-WEB",
		Date:         time.Now().Format("2006-01-02"),
		Time:         "09:30:00",
		TotalCents:   1500,
		CustomerName: "Jordan Webb",
		Status:       domain.TxStatusCompleted,
	})

	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	payload, _ := json.Marshal(domain.SearchParams{CustomerName: "jordan"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/search", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Transactions) != 1 || body.Transactions[0].ID != "T-WEB" {
		t.Fatalf("unexpected results %+v", body.Transactions)
	}
}

func TestMutatingRequestNeedsCSRFToken(t *testing.T) {
	api, _ := newTestAPI(t)
	token := loginAsAdmin(t, api)

	payload, _ := json.Marshal(domain.SearchParams{CustomerName: "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/search", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}
}

func TestRefundRequiresManagerPIN(t *testing.T) {
	api, repo := newTestAPI(t)
	seedTransaction(t, repo, domain.Transaction{
		ID:         "T-PIN",
		Date:       time.Now().Format("2006-01-02"),
		Time:       "10:00:00",
		TotalCents: 900,
		Status:     domain.TxStatusCompleted,
	})

	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	send := func(pin string) *httptest.ResponseRecorder {
		payload, _ := json.Marshal(domain.RefundRequest{TransactionID: "T-PIN", ManagerPIN: pin})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/refunds", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-CSRF-Token", csrf)
		req.RemoteAddr = "127.0.0.1:6100"
		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, req)
		return rec
	}

	if rec := send("000000"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong PIN, got %d", rec.Code)
	}
	rec := send("903471")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with correct PIN, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var result domain.RefundResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Success || result.RefundID == "" {
		t.Fatalf("expected successful refund, got %+v", result)
	}
}

func TestReturnRateIsAdminOnly(t *testing.T) {
	api, _ := newTestAPI(t)

	token := loginAs(t, api, "cashier", "cashier123")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/return-rate?period=week", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}
}

func TestInventoryRoundTripOverHTTP(t *testing.T) {
	api, _ := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	post := func(path string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-CSRF-Token", csrf)
		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, req)
		return rec
	}

	payload, _ := json.Marshal(domain.ReturnRecord{
		TransactionID: "T-INV",
		Items: []domain.ReturnItem{
			{ProductID: "P-MUG-01", Name: "Ceramic Mug 350ml", Qty: 1, PriceCents: 899, Condition: domain.ConditionNew},
		},
	})
	rec := post("/api/v1/returns", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create return: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Return domain.ReturnRecord `json:"return"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = post("/api/v1/returns/"+created.Return.ID+"/inventory", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("apply inventory: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	// Applying twice conflicts.
	rec = post("/api/v1/returns/"+created.Return.ID+"/inventory", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second apply: expected 409, got %d", rec.Code)
	}
	// Reverts are PIN-gated like refunds.
	rec = post("/api/v1/returns/"+created.Return.ID+"/inventory/revert", []byte(`{"manager_pin":"000000"}`))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("revert with wrong PIN: expected 403, got %d", rec.Code)
	}
	rec = post("/api/v1/returns/"+created.Return.ID+"/inventory/revert", []byte(`{"manager_pin":"903471"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("revert: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func loginAsAdmin(t *testing.T, api *API) string {
	t.Helper()
	return loginAs(t, api, "admin", "admin123")
}

func loginAs(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("login as %s failed, status %d", username, res.Code)
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if payload.AccessToken == "" {
		t.Fatalf("expected access token")
	}
	return payload.AccessToken
}

func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("csrf-token endpoint returned status %d", res.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode csrf-token response: %v", err)
	}
	if payload["csrf_token"] == "" {
		t.Fatalf("expected non-empty csrf_token")
	}
	return payload["csrf_token"]
}
