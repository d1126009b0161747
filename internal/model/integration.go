package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConnectionType describes how an integration authenticates to AWS.
type ConnectionType string

const (
	ConnectionTypeManual  ConnectionType = "manual"
	ConnectionTypeIAMRole ConnectionType = "iam_role"
)

// ConnectionStatus is the last known state of an integration.
type ConnectionStatus string

const (
	ConnectionStatusPending      ConnectionStatus = "pending"
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusError        ConnectionStatus = "error"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
)

// AWSIntegration is a user's connection to an AWS account.
type AWSIntegration struct {
	BaseEntity
	UserID                 uuid.UUID        `json:"user_id" db:"user_id"`
	AccountName            string           `json:"account_name" db:"account_name"`
	AccountID              string           `json:"aws_account_id,omitempty" db:"aws_account_id"`
	Region                 string           `json:"aws_region" db:"aws_region"`
	ConnectionType         ConnectionType   `json:"connection_type" db:"connection_type"`
	RoleARN                string           `json:"role_arn,omitempty" db:"role_arn"`
	ExternalID             string           `json:"external_id,omitempty" db:"external_id"`
	AccessKeyID            string           `json:"access_key_id,omitempty" db:"access_key_id"`
	SecretEncrypted        []byte           `json:"-" db:"secret_access_key_encrypted"`
	ConnectionStatus       ConnectionStatus `json:"connection_status" db:"connection_status"`
	StatusMessage          string           `json:"status_message,omitempty" db:"status_message"`
	PermissionsMarketplace bool             `json:"permissions_marketplace" db:"permissions_marketplace"`
	PermissionsUsage       bool             `json:"permissions_usage" db:"permissions_usage"`
	LastConnectionTest     *time.Time       `json:"last_connection_test,omitempty" db:"last_connection_test"`
	LastSyncAt             *time.Time       `json:"last_sync_at,omitempty" db:"last_sync_at"`
}

// CanSearchMarketplace reports whether live marketplace searches may use the integration.
func (i *AWSIntegration) CanSearchMarketplace() bool {
	return i.ConnectionStatus == ConnectionStatusConnected && i.PermissionsMarketplace
}

// AWSCredentials holds the decrypted material needed to build an AWS client.
type AWSCredentials struct {
	AccessKeyID   string `json:"access_key_id,omitempty"`
	SecretKey     string `json:"secret_key,omitempty"`
	Region        string `json:"region"`
	AssumeRoleARN string `json:"assume_role_arn,omitempty"`
	ExternalID    string `json:"external_id,omitempty"`
}

// IntegrationCreateRequest is the API request to connect an account with keys.
type IntegrationCreateRequest struct {
	AccountName            string `json:"account_name"`
	Region                 string `json:"aws_region"`
	AccessKeyID            string `json:"access_key_id"`
	SecretAccessKey        string `json:"secret_access_key"`
	PermissionsMarketplace *bool  `json:"permissions_marketplace,omitempty"`
	PermissionsUsage       *bool  `json:"permissions_usage,omitempty"`
}

// RoleSetupRequest starts an IAM role based integration.
type RoleSetupRequest struct {
	AccountName string `json:"account_name"`
	Region      string `json:"aws_region"`
}

// RoleVerifyRequest completes an IAM role based integration.
type RoleVerifyRequest struct {
	RoleARN string `json:"role_arn"`
}

// SyncDataType selects what an integration sync pulls.
type SyncDataType string

const (
	SyncMarketplaceProducts SyncDataType = "marketplace_products"
	SyncServiceUsage        SyncDataType = "service_usage"
)

// Valid reports whether t is a supported sync data type.
func (t SyncDataType) Valid() bool {
	return t == SyncMarketplaceProducts || t == SyncServiceUsage
}

// SyncStatus is the state of a sync run.
type SyncStatus string

const (
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusCompleted  SyncStatus = "completed"
	SyncStatusFailed     SyncStatus = "failed"
)

// SyncLog records one sync run of an integration.
type SyncLog struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	IntegrationID uuid.UUID    `json:"integration_id" db:"integration_id"`
	UserID        uuid.UUID    `json:"user_id" db:"user_id"`
	DataType      SyncDataType `json:"data_type" db:"data_type"`
	Status        SyncStatus   `json:"sync_status" db:"sync_status"`
	RecordsSynced int          `json:"records_synced" db:"records_synced"`
	RecordsFailed int          `json:"records_failed" db:"records_failed"`
	ErrorMessage  string       `json:"error_message,omitempty" db:"error_message"`
	StartedAt     time.Time    `json:"started_at" db:"started_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
}

// SyncResult is the outcome counted by a sync run.
type SyncResult struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// ServiceUsage is the monthly cost of one AWS service for an integration.
type ServiceUsage struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	IntegrationID uuid.UUID       `json:"integration_id" db:"integration_id"`
	UserID        uuid.UUID       `json:"user_id" db:"user_id"`
	ServiceName   string          `json:"service_name" db:"service_name"`
	PeriodStart   time.Time       `json:"period_start" db:"period_start"`
	PeriodEnd     time.Time       `json:"period_end" db:"period_end"`
	Cost          decimal.Decimal `json:"cost" db:"cost"`
	UsageQuantity decimal.Decimal `json:"usage_quantity" db:"usage_quantity"`
	Currency      Currency        `json:"currency" db:"currency"`
}
