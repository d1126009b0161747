package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/apierrors"
	"github.com/contractlens/backend/internal/integration"
	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/provider/aws"
	"github.com/contractlens/backend/internal/repository"
)

const defaultSyncLogLimit = 20

// SecretSealer encrypts AWS secrets before they are stored.
type SecretSealer interface {
	EncryptSecret(secret string) ([]byte, error)
}

// SyncRequest is the body of POST /integrations/{id}/sync.
type SyncRequest struct {
	DataType model.SyncDataType `json:"data_type"`
}

// RoleSetupResponse carries what a user needs to create the integration role.
type RoleSetupResponse struct {
	Integration    *model.AWSIntegration `json:"integration"`
	ExternalID     string                `json:"external_id"`
	Template       map[string]any        `json:"cloudformation_template"`
	StackURL       string                `json:"stack_url"`
	RoleName       string                `json:"role_name"`
	TrustedAccount string                `json:"trusted_account_id"`
}

// IntegrationHandler manages AWS integrations.
type IntegrationHandler struct {
	repo              repository.IntegrationRepository
	syncLogs          repository.SyncLogRepository
	usage             repository.UsageRepository
	svc               *integration.Service
	sealer            SecretSealer
	platformAccountID string
	defaultRegion     string
	logger            *slog.Logger
}

// NewIntegrationHandler creates a new IntegrationHandler. platformAccountID
// is the account customer roles trust; role setup is disabled without it.
func NewIntegrationHandler(
	repo repository.IntegrationRepository,
	syncLogs repository.SyncLogRepository,
	usage repository.UsageRepository,
	svc *integration.Service,
	sealer SecretSealer,
	platformAccountID, defaultRegion string,
	logger *slog.Logger,
) *IntegrationHandler {
	return &IntegrationHandler{
		repo:              repo,
		syncLogs:          syncLogs,
		usage:             usage,
		svc:               svc,
		sealer:            sealer,
		platformAccountID: platformAccountID,
		defaultRegion:     defaultRegion,
		logger:            logger,
	}
}

// Create handles POST /integrations with access keys. The connection is
// tested before responding.
func (h *IntegrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req model.IntegrationCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.AccountName = strings.TrimSpace(req.AccountName)
	req.AccessKeyID = strings.TrimSpace(req.AccessKeyID)
	if req.AccountName == "" || req.AccessKeyID == "" || req.SecretAccessKey == "" {
		badRequest(w, r, "account_name, access_key_id and secret_access_key are required")
		return
	}

	sealed, err := h.sealer.EncryptSecret(req.SecretAccessKey)
	if err != nil {
		respondErr(w, r, h.logger, "integration", err)
		return
	}

	integ := &model.AWSIntegration{
		BaseEntity:             model.NewBaseEntity(),
		UserID:                 userID,
		AccountName:            req.AccountName,
		Region:                 h.region(req.Region),
		ConnectionType:         model.ConnectionTypeManual,
		AccessKeyID:            req.AccessKeyID,
		SecretEncrypted:        sealed,
		ConnectionStatus:       model.ConnectionStatusPending,
		PermissionsMarketplace: boolOr(req.PermissionsMarketplace, true),
		PermissionsUsage:       boolOr(req.PermissionsUsage, true),
	}
	if err := h.repo.Create(r.Context(), integ); err != nil {
		respondErr(w, r, h.logger, "integration", err)
		return
	}

	if _, err := h.svc.TestConnection(r.Context(), integ); err != nil {
		h.logger.Warn("initial connection test failed", "integration_id", integ.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, masked(integ))
}

// List handles GET /integrations.
func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	integrations, err := h.repo.List(r.Context(), userID)
	if err != nil {
		respondErr(w, r, h.logger, "integration", err)
		return
	}
	out := make([]*model.AWSIntegration, 0, len(integrations))
	for _, i := range integrations {
		out = append(out, masked(i))
	}
	writeData(w, out)
}

// Delete handles DELETE /integrations/{id}.
func (h *IntegrationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), userID, id); err != nil {
		respondErr(w, r, h.logger, "integration", err)
		return
	}
	h.svc.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}

// Test handles POST /integrations/{id}/test.
func (h *IntegrationHandler) Test(w http.ResponseWriter, r *http.Request) {
	integ, ok := h.load(w, r)
	if !ok {
		return
	}

	health, err := h.svc.TestConnection(r.Context(), integ)
	if err != nil {
		respondErr(w, r, h.logger, "integration", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"healthy":           health.Healthy,
		"message":           health.Message,
		"details":           health.Details,
		"connection_status": integ.ConnectionStatus,
	})
}

// Sync handles POST /integrations/{id}/sync {"data_type": "marketplace_products"|"service_usage"}.
func (h *IntegrationHandler) Sync(w http.ResponseWriter, r *http.Request) {
	integ, ok := h.load(w, r)
	if !ok {
		return
	}

	var req SyncRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.DataType.Valid() {
		badRequest(w, r, "data_type must be marketplace_products or service_usage")
		return
	}
	if integ.ConnectionStatus != model.ConnectionStatusConnected {
		badRequest(w, r, "integration is not connected")
		return
	}

	entry, err := h.svc.Sync(r.Context(), integ, req.DataType)
	switch {
	case errors.Is(err, integration.ErrSyncNotPermitted):
		writeError(w, r, apierrors.NewForbiddenError(err.Error()))
	case err != nil && entry != nil:
		writeError(w, r, apierrors.New(apierrors.KindUpstream, "sync failed").WithDetails(entry))
	case err != nil:
		respondErr(w, r, h.logger, "sync", err)
	default:
		writeJSON(w, http.StatusOK, entry)
	}
}

// SyncLogs handles GET /integrations/{id}/sync-logs?limit=20.
func (h *IntegrationHandler) SyncLogs(w http.ResponseWriter, r *http.Request) {
	integ, ok := h.load(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", defaultSyncLogLimit)
	if err != nil || limit == 0 {
		badRequest(w, r, "invalid limit")
		return
	}

	logs, err := h.syncLogs.ListByIntegration(r.Context(), integ.UserID, integ.ID, limit)
	if err != nil {
		respondErr(w, r, h.logger, "sync log", err)
		return
	}
	if logs == nil {
		logs = []*model.SyncLog{}
	}
	writeData(w, logs)
}

// Usage handles GET /integrations/{id}/usage, the synced Cost Explorer rows.
func (h *IntegrationHandler) Usage(w http.ResponseWriter, r *http.Request) {
	integ, ok := h.load(w, r)
	if !ok {
		return
	}

	rows, err := h.usage.ListByIntegration(r.Context(), integ.UserID, integ.ID)
	if err != nil {
		respondErr(w, r, h.logger, "usage", err)
		return
	}
	if rows == nil {
		rows = []model.ServiceUsage{}
	}
	writeData(w, rows)
}

// SetupRole handles POST /integrations/iam-role. It creates a pending role
// integration and returns the CloudFormation template that grants access.
func (h *IntegrationHandler) SetupRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if h.platformAccountID == "" {
		writeError(w, r, apierrors.NewServiceUnavailableError("IAM role setup"))
		return
	}

	var req model.RoleSetupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.AccountName = strings.TrimSpace(req.AccountName)
	if req.AccountName == "" {
		badRequest(w, r, "account_name is required")
		return
	}

	externalID := uuid.NewString()
	integ := &model.AWSIntegration{
		BaseEntity:             model.NewBaseEntity(),
		UserID:                 userID,
		AccountName:            req.AccountName,
		Region:                 h.region(req.Region),
		ConnectionType:         model.ConnectionTypeIAMRole,
		ExternalID:             externalID,
		ConnectionStatus:       model.ConnectionStatusPending,
		StatusMessage:          "waiting for role verification",
		PermissionsMarketplace: true,
		PermissionsUsage:       true,
	}

	template := aws.RoleTemplate(externalID, h.platformAccountID)
	stackURL, err := aws.StackURL(integ.Region, externalID, h.platformAccountID, template)
	if err != nil {
		respondErr(w, r, h.logger, "integration", err)
		return
	}
	if err := h.repo.Create(r.Context(), integ); err != nil {
		respondErr(w, r, h.logger, "integration", err)
		return
	}

	writeJSON(w, http.StatusCreated, RoleSetupResponse{
		Integration:    integ,
		ExternalID:     externalID,
		Template:       template,
		StackURL:       stackURL,
		RoleName:       aws.RoleName,
		TrustedAccount: h.platformAccountID,
	})
}

// VerifyRole handles POST /integrations/{id}/verify-role {"role_arn": "..."}.
func (h *IntegrationHandler) VerifyRole(w http.ResponseWriter, r *http.Request) {
	integ, ok := h.load(w, r)
	if !ok {
		return
	}
	if integ.ConnectionType != model.ConnectionTypeIAMRole {
		badRequest(w, r, "integration does not use an IAM role")
		return
	}

	var req model.RoleVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	accountID, err := aws.AccountFromRoleARN(req.RoleARN)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}

	integ.RoleARN = strings.TrimSpace(req.RoleARN)
	integ.AccountID = accountID
	integ.ConnectionStatus = model.ConnectionStatusConnected
	integ.StatusMessage = "role verified"
	if err := h.repo.Update(r.Context(), integ); err != nil {
		respondErr(w, r, h.logger, "integration", err)
		return
	}
	h.svc.Forget(integ.ID)
	writeJSON(w, http.StatusOK, masked(integ))
}

func (h *IntegrationHandler) load(w http.ResponseWriter, r *http.Request) (*model.AWSIntegration, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return nil, false
	}
	integ, err := h.repo.GetByID(r.Context(), userID, id)
	if err != nil {
		respondErr(w, r, h.logger, "integration", err)
		return nil, false
	}
	return integ, true
}

func (h *IntegrationHandler) region(requested string) string {
	if r := strings.TrimSpace(requested); r != "" {
		return r
	}
	return h.defaultRegion
}

// masked returns a copy safe to serialize: the access key shows its last
// four characters only.
func masked(i *model.AWSIntegration) *model.AWSIntegration {
	cp := *i
	cp.SecretEncrypted = nil
	if n := len(cp.AccessKeyID); n > 4 {
		cp.AccessKeyID = strings.Repeat("*", n-4) + cp.AccessKeyID[n-4:]
	}
	return &cp
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
