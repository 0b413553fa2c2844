package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"lending/internal/auth"
	"lending/internal/bank"
	"lending/internal/config"
	"lending/internal/errs"
	"lending/internal/interest"
	"lending/internal/ledger"
	"lending/internal/logging"
	"lending/internal/metrics"
	"lending/internal/oracle"
	"lending/internal/risk"
	"lending/internal/services"
	"lending/internal/store"
	"lending/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const (
	solFeed = "0xef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"
	usdFeed = "0xeaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a"
)

var testNow = time.Unix(1_700_000_000, 0)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type memoryIdentities struct {
	mu   sync.Mutex
	byID map[string]store.Identity
}

func (m *memoryIdentities) Create(_ context.Context, _ store.Execer, identity store.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byID == nil {
		m.byID = make(map[string]store.Identity)
	}
	for _, existing := range m.byID {
		if existing.Email == identity.Email || existing.Username == identity.Username {
			return errs.ErrAlreadyExists
		}
	}
	identity.CreatedAt = testNow
	m.byID[identity.ID] = identity
	return nil
}

func (m *memoryIdentities) find(match func(store.Identity) bool) (store.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.byID {
		if match(identity) {
			return identity, nil
		}
	}
	return store.Identity{}, errs.ErrNotFound
}

func (m *memoryIdentities) GetByEmail(_ context.Context, email string) (store.Identity, error) {
	return m.find(func(i store.Identity) bool { return i.Email == email })
}

func (m *memoryIdentities) GetByUsername(_ context.Context, username string) (store.Identity, error) {
	return m.find(func(i store.Identity) bool { return i.Username == username })
}

func (m *memoryIdentities) GetByID(_ context.Context, id string) (store.Identity, error) {
	return m.find(func(i store.Identity) bool { return i.ID == id })
}

type memoryAdmins struct {
	mu    sync.Mutex
	super map[string]bool
	roles map[string][]string
}

func (m *memoryAdmins) IsAdmin(_ context.Context, userID string) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	isSuper, ok := m.super[userID]
	return ok, isSuper, nil
}

func (m *memoryAdmins) HasRole(_ context.Context, userID, role string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, granted := range m.roles[userID] {
		if granted == role {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryAdmins) Roles(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.roles[userID]...), nil
}

func (m *memoryAdmins) CreateAdmin(_ context.Context, _ store.Execer, userID string, isSuper bool, _ *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.super == nil {
		m.super = make(map[string]bool)
	}
	if _, ok := m.super[userID]; ok {
		return errs.ErrAlreadyExists
	}
	m.super[userID] = isSuper
	return nil
}

func (m *memoryAdmins) GrantRole(_ context.Context, _ store.Execer, adminUserID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roles == nil {
		m.roles = make(map[string][]string)
	}
	m.roles[adminUserID] = append(m.roles[adminUserID], role)
	return nil
}

func (m *memoryAdmins) HasAnyAdmin(context.Context, store.Getter) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.super) > 0, nil
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Log(_ context.Context, _ store.Execer, _, action, _, _ string, _ any) error {
	a.mu.Lock()
	a.actions = append(a.actions, action)
	a.mu.Unlock()
	return nil
}

func (a *recordingAudit) List(context.Context, int, int) ([]store.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := make([]store.AuditEntry, 0, len(a.actions))
	for _, action := range a.actions {
		entries = append(entries, store.AuditEntry{Action: action})
	}
	return entries, nil
}

type testServer struct {
	handler    http.Handler
	identities *memoryIdentities
	admins     *memoryAdmins
	audit      *recordingAudit
	prices     *oracle.StaticSource
	hub        *websocket.Hub
	metrics    *metrics.Lending
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	prices := oracle.NewStaticSource()
	for feed, price := range map[string]string{solFeed: "1", usdFeed: "0.01"} {
		id, err := oracle.ParseFeedID(feed)
		if err != nil {
			t.Fatalf("feed: %v", err)
		}
		prices.Set(id, oracle.Quote{Price: decimal.RequireFromString(price), PublishTime: testNow})
	}
	clock := func() time.Time { return testNow }
	registry := bank.NewRegistry(interest.NewEngine(time.Hour))
	riskEngine := risk.NewEngine(oracle.NewGateway(prices, clock), registry, time.Minute)
	hub := websocket.NewHub()
	m := metrics.New()
	lending := services.NewLendingService(store.NewMemory(), registry, ledger.New(ledger.DefaultCapacity), riskEngine,
		services.WithClock(clock),
		services.WithHub(hub),
		services.WithMetrics(m),
		services.WithLogger(logging.Discard()),
	)
	ts := &testServer{
		identities: &memoryIdentities{},
		admins:     &memoryAdmins{},
		audit:      &recordingAudit{},
		prices:     prices,
		hub:        hub,
		metrics:    m,
	}
	ts.handler = New(Deps{
		Config: config.Config{
			AppEnv:         "test",
			JWTSecret:      "secret",
			TokenTTL:       time.Minute,
			AllowedOrigins: "*",
		},
		TxRunner:   fakeTxRunner{},
		Identities: ts.identities,
		Admin:      ts.admins,
		Audit:      ts.audit,
		Lending:    lending,
		Hub:        hub,
		Metrics:    m,
		Logger:     logging.Discard(),
	}).Routes()
	return ts
}

// do sends a JSON request as userID (anonymous when empty) and decodes the
// response into out when out is non-nil.
func (ts *testServer) do(t *testing.T, method, path, userID string, body any, out any) int {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := auth.GenerateToken("secret", userID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if out != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, rr.Body.String(), err)
		}
	}
	return rr.Code
}

// register creates an identity through the API and returns its id.
func (ts *testServer) register(t *testing.T, username string) string {
	t.Helper()
	var resp struct {
		UserID string `json:"user_id"`
	}
	code := ts.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "Password123!",
	}, &resp)
	if code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d", username, code)
	}
	return resp.UserID
}

func poolBody(assetID, ticker, feed string) map[string]string {
	return map[string]string{
		"asset_id":              assetID,
		"ticker":                ticker,
		"oracle_feed_id":        feed,
		"liquidation_threshold": "0.9",
		"liquidation_bonus":     "0.05",
		"close_factor":          "0.5",
		"max_ltv":               "0.8",
		"interest_rate":         "0",
	}
}
