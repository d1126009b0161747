package integration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractlens/backend/internal/cache"
	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/provider"
	"github.com/contractlens/backend/internal/repository"
)

var fixedNow = time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)

type fakeIntegrations struct {
	repository.IntegrationRepository
	connected []*model.AWSIntegration
	statuses  map[uuid.UUID]model.ConnectionStatus
	lastSync  map[uuid.UUID]time.Time
}

func newFakeIntegrations(rows ...*model.AWSIntegration) *fakeIntegrations {
	return &fakeIntegrations{
		connected: rows,
		statuses:  map[uuid.UUID]model.ConnectionStatus{},
		lastSync:  map[uuid.UUID]time.Time{},
	}
}

func (f *fakeIntegrations) ListConnected(context.Context) ([]*model.AWSIntegration, error) {
	return f.connected, nil
}

func (f *fakeIntegrations) UpdateStatus(_ context.Context, id uuid.UUID, status model.ConnectionStatus, _ string, _ time.Time) error {
	f.statuses[id] = status
	return nil
}

func (f *fakeIntegrations) UpdateLastSync(_ context.Context, id uuid.UUID, at time.Time) error {
	f.lastSync[id] = at
	return nil
}

type fakeProducts struct {
	repository.ProductRepository
	stored []model.ExternalProduct
}

func (f *fakeProducts) Upsert(_ context.Context, products []model.ExternalProduct) (int, error) {
	f.stored = append(f.stored, products...)
	return len(products), nil
}

type fakeUsage struct {
	repository.UsageRepository
	stored []model.ServiceUsage
}

func (f *fakeUsage) Upsert(_ context.Context, rows []model.ServiceUsage) (int, error) {
	f.stored = append(f.stored, rows...)
	return len(rows), nil
}

type fakeSyncLogs struct {
	repository.SyncLogRepository
	logs map[uuid.UUID]*model.SyncLog
}

func (f *fakeSyncLogs) Start(_ context.Context, l *model.SyncLog) error {
	l.ID = uuid.New()
	l.Status = model.SyncStatusInProgress
	cp := *l
	f.logs[l.ID] = &cp
	return nil
}

func (f *fakeSyncLogs) Complete(_ context.Context, id uuid.UUID, result model.SyncResult) error {
	l := f.logs[id]
	l.Status = model.SyncStatusCompleted
	l.RecordsSynced, l.RecordsFailed = result.Synced, result.Failed
	return nil
}

func (f *fakeSyncLogs) Fail(_ context.Context, id uuid.UUID, result model.SyncResult, msg string) error {
	l := f.logs[id]
	l.Status = model.SyncStatusFailed
	l.RecordsSynced, l.RecordsFailed = result.Synced, result.Failed
	l.ErrorMessage = msg
	return nil
}

type fakeProvider struct {
	health     provider.HealthStatus
	syncOut    *provider.SyncOutput
	syncErr    error
	usage      []model.ServiceUsage
	usageStart time.Time
	usageEnd   time.Time
}

func (p *fakeProvider) Name() string                                { return "fake" }
func (p *fakeProvider) Health(context.Context) provider.HealthStatus { return p.health }
func (p *fakeProvider) Search(context.Context, provider.SearchRequest) ([]model.ExternalProduct, error) {
	return nil, nil
}
func (p *fakeProvider) SyncProducts(context.Context) (*provider.SyncOutput, error) {
	return p.syncOut, p.syncErr
}
func (p *fakeProvider) ServiceUsage(_ context.Context, start, end time.Time) ([]model.ServiceUsage, error) {
	p.usageStart, p.usageEnd = start, end
	return p.usage, nil
}
func (p *fakeProvider) Close() error { return nil }

type fakeSource struct {
	p       provider.MarketplaceProvider
	err     error
	evicted []uuid.UUID
}

func (f *fakeSource) For(*model.AWSIntegration) (provider.MarketplaceProvider, error) {
	return f.p, f.err
}

func (f *fakeSource) Evict(id uuid.UUID) { f.evicted = append(f.evicted, id) }

type recordingInvalidator struct{ prefixes []string }

func (r *recordingInvalidator) InvalidatePrefix(_ context.Context, prefix string) error {
	r.prefixes = append(r.prefixes, prefix)
	return nil
}

type recordingNotifier struct{ reasons []string }

func (r *recordingNotifier) SendSyncFailed(_ context.Context, _, _, reason string) error {
	r.reasons = append(r.reasons, reason)
	return nil
}

type harness struct {
	svc          *Service
	integrations *fakeIntegrations
	products     *fakeProducts
	usage        *fakeUsage
	logs         *fakeSyncLogs
	source       *fakeSource
	invalidator  *recordingInvalidator
	notifier     *recordingNotifier
}

func newHarness(p *fakeProvider, rows ...*model.AWSIntegration) *harness {
	h := &harness{
		integrations: newFakeIntegrations(rows...),
		products:     &fakeProducts{},
		usage:        &fakeUsage{},
		logs:         &fakeSyncLogs{logs: map[uuid.UUID]*model.SyncLog{}},
		source:       &fakeSource{p: p},
		invalidator:  &recordingInvalidator{},
		notifier:     &recordingNotifier{},
	}
	h.svc = NewService(Deps{
		Integrations: h.integrations,
		Products:     h.products,
		Usage:        h.usage,
		SyncLogs:     h.logs,
		Providers:    h.source,
		Searches:     h.invalidator,
		Notifier:     h.notifier,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.svc.now = func() time.Time { return fixedNow }
	return h
}

func newIntegration() *model.AWSIntegration {
	return &model.AWSIntegration{
		BaseEntity:             model.NewBaseEntity(),
		UserID:                 uuid.New(),
		AccountName:            "prod",
		ConnectionStatus:       model.ConnectionStatusConnected,
		PermissionsMarketplace: true,
		PermissionsUsage:       true,
	}
}

func TestSync_MarketplaceProducts(t *testing.T) {
	integ := newIntegration()
	p := &fakeProvider{syncOut: &provider.SyncOutput{
		Products: []model.ExternalProduct{{IntegrationID: integ.ID, ProductID: "prod-1"}, {IntegrationID: integ.ID, ProductID: "prod-2"}},
		Failed:   1,
	}}
	h := newHarness(p, integ)

	entry, err := h.svc.Sync(context.Background(), integ, model.SyncMarketplaceProducts)
	require.NoError(t, err)

	assert.Equal(t, model.SyncStatusCompleted, entry.Status)
	assert.Equal(t, 2, entry.RecordsSynced)
	assert.Equal(t, 1, entry.RecordsFailed)
	assert.Len(t, h.products.stored, 2)
	assert.Equal(t, model.SyncStatusCompleted, h.logs.logs[entry.ID].Status)
	assert.Equal(t, fixedNow, h.integrations.lastSync[integ.ID])
	assert.Equal(t, []string{cache.SearchPrefix(integ.ID.String())}, h.invalidator.prefixes)
	assert.Empty(t, h.notifier.reasons)
}

func TestSync_FailureIsRecordedAndNotified(t *testing.T) {
	integ := newIntegration()
	p := &fakeProvider{syncOut: &provider.SyncOutput{Failed: 2}, syncErr: errors.New("access denied")}
	h := newHarness(p, integ)

	entry, err := h.svc.Sync(context.Background(), integ, model.SyncMarketplaceProducts)
	require.Error(t, err)

	require.NotNil(t, entry)
	assert.Equal(t, model.SyncStatusFailed, entry.Status)
	stored := h.logs.logs[entry.ID]
	assert.Equal(t, model.SyncStatusFailed, stored.Status)
	assert.Equal(t, 2, stored.RecordsFailed)
	assert.Equal(t, "access denied", stored.ErrorMessage)
	assert.Equal(t, []string{"access denied"}, h.notifier.reasons)
	assert.Empty(t, h.integrations.lastSync)
}

func TestSync_ServiceUsage(t *testing.T) {
	integ := newIntegration()
	p := &fakeProvider{usage: []model.ServiceUsage{{
		IntegrationID: integ.ID,
		ServiceName:   "Amazon EC2",
		Cost:          decimal.RequireFromString("12.50"),
	}}}
	h := newHarness(p, integ)

	entry, err := h.svc.Sync(context.Background(), integ, model.SyncServiceUsage)
	require.NoError(t, err)

	assert.Equal(t, 1, entry.RecordsSynced)
	require.Len(t, h.usage.stored, 1)
	assert.Equal(t, integ.UserID, h.usage.stored[0].UserID)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), p.usageStart)
	assert.Equal(t, time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), p.usageEnd)
	assert.Empty(t, h.invalidator.prefixes)
}

func TestSync_RejectsUnpermittedOrUnknownType(t *testing.T) {
	integ := newIntegration()
	integ.PermissionsUsage = false
	h := newHarness(&fakeProvider{}, integ)

	_, err := h.svc.Sync(context.Background(), integ, model.SyncServiceUsage)
	assert.ErrorIs(t, err, ErrSyncNotPermitted)

	_, err = h.svc.Sync(context.Background(), integ, model.SyncDataType("invoices"))
	assert.Error(t, err)
	assert.Empty(t, h.logs.logs)
}

func TestSyncAll_SkipsFailuresAndUnpermitted(t *testing.T) {
	good := newIntegration()
	noMarketplace := newIntegration()
	noMarketplace.PermissionsMarketplace = false
	p := &fakeProvider{syncOut: &provider.SyncOutput{Products: []model.ExternalProduct{{ProductID: "x"}}}}
	h := newHarness(p, good, noMarketplace)

	require.NoError(t, h.svc.SyncAll(context.Background(), model.SyncMarketplaceProducts))
	assert.Len(t, h.logs.logs, 1)
	assert.Contains(t, h.integrations.lastSync, good.ID)
	assert.NotContains(t, h.integrations.lastSync, noMarketplace.ID)
}

func TestTestConnection(t *testing.T) {
	integ := newIntegration()
	p := &fakeProvider{health: provider.HealthStatus{Healthy: true, Message: "ok"}}
	h := newHarness(p, integ)

	health, err := h.svc.TestConnection(context.Background(), integ)
	require.NoError(t, err)
	assert.True(t, health.Healthy)
	assert.Equal(t, model.ConnectionStatusConnected, h.integrations.statuses[integ.ID])

	p.health = provider.HealthStatus{Healthy: false, Message: "expired token"}
	health, err = h.svc.TestConnection(context.Background(), integ)
	require.NoError(t, err)
	assert.False(t, health.Healthy)
	assert.Equal(t, model.ConnectionStatusError, h.integrations.statuses[integ.ID])
	assert.Equal(t, "expired token", integ.StatusMessage)
	assert.Equal(t, []uuid.UUID{integ.ID}, h.source.evicted)
}

func TestTestConnection_IncompleteCredentials(t *testing.T) {
	integ := newIntegration()
	h := newHarness(nil, integ)
	h.source.err = provider.ErrIncompleteIntegration

	health, err := h.svc.TestConnection(context.Background(), integ)
	require.NoError(t, err)
	assert.False(t, health.Healthy)
	assert.Equal(t, model.ConnectionStatusError, h.integrations.statuses[integ.ID])
}
