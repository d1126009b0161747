package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/contractlens/backend/internal/auth"
	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/repository"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// serve routes a single request through chi so URL params resolve.
func serve(method, pattern, target string, h http.HandlerFunc, body string, userID uuid.UUID) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, h)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if userID != uuid.Nil {
		req = req.WithContext(auth.ContextWithUser(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

type errorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func newContract(userID uuid.UUID, name string, end time.Time) *model.Contract {
	start := end.AddDate(-1, 0, 0)
	return &model.Contract{
		BaseEntity:      model.NewBaseEntity(),
		UserID:          userID,
		Name:            name,
		Client:          name + " Inc",
		Value:           decimal.NewFromInt(12000),
		RemainingAmount: decimal.NewFromInt(12000),
		StartDate:       start,
		EndDate:         end,
		Length:          model.FormatLength(start, end),
		Status:          model.ContractStatusActive,
		ProviderType:    model.ProviderTypeMarketplace,
	}
}

type memContracts struct {
	repository.ContractRepository
	mu   sync.Mutex
	rows map[uuid.UUID]*model.Contract
}

func newMemContracts(rows ...*model.Contract) *memContracts {
	m := &memContracts{rows: map[uuid.UUID]*model.Contract{}}
	for _, c := range rows {
		m.rows[c.ID] = c
	}
	return m
}

func (m *memContracts) Create(_ context.Context, c *model.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[c.ID] = c
	return nil
}

func (m *memContracts) GetByID(_ context.Context, userID, id uuid.UUID) (*model.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || c.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memContracts) List(_ context.Context, f model.ContractFilter) ([]*model.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Contract
	for _, c := range m.rows {
		if c.UserID != f.UserID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.ProviderType != "" && c.ProviderType != f.ProviderType {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Search)) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memContracts) Update(_ context.Context, c *model.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[c.ID]; !ok {
		return repository.ErrNotFound
	}
	m.rows[c.ID] = c
	return nil
}

func (m *memContracts) Delete(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || c.UserID != userID {
		return repository.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

type memInvoices struct {
	repository.InvoiceRepository
	rows map[uuid.UUID]*model.Invoice
}

func newMemInvoices(rows ...*model.Invoice) *memInvoices {
	m := &memInvoices{rows: map[uuid.UUID]*model.Invoice{}}
	for _, inv := range rows {
		m.rows[inv.ID] = inv
	}
	return m
}

func (m *memInvoices) Create(_ context.Context, inv *model.Invoice) error {
	m.rows[inv.ID] = inv
	return nil
}

func (m *memInvoices) GetByID(_ context.Context, userID, id uuid.UUID) (*model.Invoice, error) {
	inv, ok := m.rows[id]
	if !ok || inv.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memInvoices) ListByContract(_ context.Context, userID, contractID uuid.UUID) ([]*model.Invoice, error) {
	var out []*model.Invoice
	for _, inv := range m.rows {
		if inv.UserID == userID && inv.ContractID == contractID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *memInvoices) NumberExists(_ context.Context, contractID uuid.UUID, number string, excludeID uuid.UUID) (bool, error) {
	for _, inv := range m.rows {
		if inv.ContractID == contractID && inv.InvoiceNumber == number && inv.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memInvoices) Update(_ context.Context, inv *model.Invoice) error {
	m.rows[inv.ID] = inv
	return nil
}

func (m *memInvoices) Delete(_ context.Context, userID, id uuid.UUID) error {
	inv, ok := m.rows[id]
	if !ok || inv.UserID != userID {
		return repository.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}
