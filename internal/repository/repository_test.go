package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractlens/backend/internal/migrations"
	"github.com/contractlens/backend/internal/model"
)

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(sql.ErrNoRows), ErrNotFound)
	other := errors.New("conn reset")
	assert.Equal(t, other, notFound(other))
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("CONTRACTLENS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CONTRACTLENS_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))
	return db
}

func newContract(userID uuid.UUID, name string, end time.Time) *model.Contract {
	start := end.AddDate(-1, 0, 0)
	return &model.Contract{
		BaseEntity:   model.NewBaseEntity(),
		UserID:       userID,
		Name:         name,
		Client:       "Acme",
		Value:        decimal.NewFromInt(120000),
		StartDate:    start,
		EndDate:      end,
		Length:       model.FormatLength(start, end),
		Status:       model.ContractStatusActive,
		ProviderType: model.ProviderTypeMarketplace,
	}
}

func TestPostgres_ContractsAndInvoices(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	contracts := NewPostgresContractRepository(db)
	invoices := NewPostgresInvoiceRepository(db)

	userID := uuid.New()
	c := newContract(userID, "Datadog", model.DateOnly(time.Now().AddDate(0, 1, 0)))
	require.NoError(t, contracts.Create(ctx, c))

	got, err := contracts.GetByID(ctx, userID, c.ID)
	require.NoError(t, err)
	assert.True(t, c.Value.Equal(got.Value))
	assert.Equal(t, c.EndDate, got.EndDate)

	_, err = contracts.GetByID(ctx, uuid.New(), c.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := contracts.List(ctx, model.ContractFilter{UserID: userID, Search: "data"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	inv := &model.Invoice{
		BaseEntity:    model.NewBaseEntity(),
		UserID:        userID,
		ContractID:    c.ID,
		InvoiceNumber: "INV-1",
		Date:          model.DateOnly(time.Now()),
		Amount:        decimal.NewFromInt(10000),
		Status:        model.InvoiceStatusPaid,
	}
	require.NoError(t, invoices.Create(ctx, inv))

	exists, err := invoices.NumberExists(ctx, c.ID, "INV-1", uuid.Nil)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = invoices.NumberExists(ctx, c.ID, "INV-1", inv.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, contracts.Delete(ctx, userID, c.ID))
	assert.ErrorIs(t, contracts.Delete(ctx, userID, c.ID), ErrNotFound)

	kept, err := invoices.GetByID(ctx, userID, inv.ID)
	require.NoError(t, err, "invoices outlive their contract")
	assert.Equal(t, c.ID, kept.ContractID)
	left, err := invoices.ListByContract(ctx, userID, c.ID)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestPostgres_ContractStatusCheck(t *testing.T) {
	db := setupDB(t)
	c := newContract(uuid.New(), "Bogus", model.DateOnly(time.Now().AddDate(0, 1, 0)))
	c.Status = "Bogus"
	assert.Error(t, NewPostgresContractRepository(db).Create(context.Background(), c))
}

func TestPostgres_Notices(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	notices := NewPostgresNoticeRepository(db)

	n := &model.OptimizationNotice{
		UserID:         uuid.New(),
		ContractID:     uuid.New(),
		IntegrationID:  uuid.New(),
		ProductID:      "prod-1",
		MonthlySavings: decimal.NewFromInt(500),
	}
	sent, err := notices.NoticeSent(ctx, n)
	require.NoError(t, err)
	assert.False(t, sent)

	require.NoError(t, notices.RecordNotice(ctx, n))
	sent, err = notices.NoticeSent(ctx, n)
	require.NoError(t, err)
	assert.True(t, sent)

	changed := *n
	changed.ID = uuid.Nil
	changed.MonthlySavings = decimal.NewFromInt(600)
	sent, err = notices.NoticeSent(ctx, &changed)
	require.NoError(t, err)
	assert.False(t, sent)
	require.NoError(t, notices.RecordNotice(ctx, &changed))
	sent, err = notices.NoticeSent(ctx, n)
	require.NoError(t, err)
	assert.False(t, sent, "the latest amount replaces the earlier one")
}

func TestPostgres_ProductUpsert(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	integrations := NewPostgresIntegrationRepository(db)
	products := NewPostgresProductRepository(db)

	userID := uuid.New()
	integ := &model.AWSIntegration{
		BaseEntity:             model.NewBaseEntity(),
		UserID:                 userID,
		AccountName:            "prod",
		Region:                 "us-east-1",
		ConnectionType:         model.ConnectionTypeManual,
		ConnectionStatus:       model.ConnectionStatusConnected,
		PermissionsMarketplace: true,
	}
	require.NoError(t, integrations.Create(ctx, integ))

	cost := decimal.NewFromInt(8000)
	p := model.ExternalProduct{
		IntegrationID: integ.ID,
		ProductID:     "prod-abc",
		ProductName:   "Acme Analytics",
		MonthlyCost:   &cost,
		Currency:      model.CurrencyUSD,
		Availability:  model.AvailabilityAvailable,
		Metadata:      map[string]any{"client": "Acme"},
		Source:        model.SourceCatalog,
		SyncedAt:      time.Now().UTC(),
	}
	n, err := products.Upsert(ctx, []model.ExternalProduct{p})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p.ID = uuid.Nil
	p.MonthlyCost = nil
	_, err = products.Upsert(ctx, []model.ExternalProduct{p})
	require.NoError(t, err)

	list, err := products.List(ctx, model.ProductFilter{UserID: userID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].MonthlyCost)
	assert.Equal(t, "Acme", list[0].Metadata["client"])
}
