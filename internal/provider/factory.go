package provider

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/config"
	"github.com/contractlens/backend/internal/crypto"
	"github.com/contractlens/backend/internal/model"
)

// ErrIncompleteIntegration is returned when an integration has no usable
// credentials yet, such as an IAM role integration awaiting verification.
var ErrIncompleteIntegration = errors.New("provider: integration credentials are incomplete")

// Factory builds providers from stored integrations.
type Factory struct {
	encryptionKey string
	platform      config.AWSConfig
	limits        Limits
	logger        *slog.Logger
}

// NewFactory creates a Factory. platform holds the credentials used as the
// base identity when assuming customer roles.
func NewFactory(encryptionKey string, platform config.AWSConfig, limits Limits, logger *slog.Logger) *Factory {
	return &Factory{
		encryptionKey: encryptionKey,
		platform:      platform,
		limits:        limits,
		logger:        logger,
	}
}

// Credentials resolves the AWS credentials of an integration, decrypting the
// stored secret for manual integrations.
func (f *Factory) Credentials(integ *model.AWSIntegration) (model.AWSCredentials, error) {
	creds := model.AWSCredentials{Region: integ.Region}
	if creds.Region == "" {
		creds.Region = f.platform.Region
	}

	switch integ.ConnectionType {
	case model.ConnectionTypeIAMRole:
		if integ.RoleARN == "" {
			return creds, ErrIncompleteIntegration
		}
		creds.AccessKeyID = f.platform.AccessKeyID
		creds.SecretKey = f.platform.SecretKey
		creds.AssumeRoleARN = integ.RoleARN
		creds.ExternalID = integ.ExternalID

	case model.ConnectionTypeManual, "":
		if integ.AccessKeyID == "" || len(integ.SecretEncrypted) == 0 {
			return creds, ErrIncompleteIntegration
		}
		secret, err := crypto.DecryptString(integ.SecretEncrypted, f.encryptionKey)
		if err != nil {
			return creds, fmt.Errorf("factory: failed to decrypt credentials: %w", err)
		}
		creds.AccessKeyID = integ.AccessKeyID
		creds.SecretKey = secret

	default:
		return creds, fmt.Errorf("factory: unsupported connection type: %s", integ.ConnectionType)
	}
	return creds, nil
}

// New creates a MarketplaceProvider for the integration.
func (f *Factory) New(integ *model.AWSIntegration) (MarketplaceProvider, error) {
	creds, err := f.Credentials(integ)
	if err != nil {
		return nil, err
	}
	if AwsFromCredsFunc == nil {
		return nil, fmt.Errorf("factory: AWS provider constructor not registered")
	}
	return AwsFromCredsFunc(integ.ID, creds, f.limits, f.logger.With("integration_id", integ.ID))
}

// EncryptSecret encrypts an AWS secret access key for storage.
func (f *Factory) EncryptSecret(secret string) ([]byte, error) {
	return crypto.EncryptString(secret, f.encryptionKey)
}

// AwsFromCredsFunc is set at startup by the aws package to avoid circular imports.
var AwsFromCredsFunc func(integrationID uuid.UUID, creds model.AWSCredentials, limits Limits, logger *slog.Logger) (MarketplaceProvider, error)

// Pool hands out one cached provider per integration.
type Pool struct {
	registry *Registry
	factory  *Factory
}

// NewPool creates a Pool backed by registry and factory.
func NewPool(registry *Registry, factory *Factory) *Pool {
	return &Pool{registry: registry, factory: factory}
}

// For returns the integration's provider, building it on first use.
func (p *Pool) For(integ *model.AWSIntegration) (MarketplaceProvider, error) {
	return p.registry.GetOrCreate(integ.ID.String(), func() (MarketplaceProvider, error) {
		return p.factory.New(integ)
	})
}

// Evict drops the cached provider, for example after credentials change.
func (p *Pool) Evict(integrationID uuid.UUID) {
	p.registry.Remove(integrationID.String())
}

// Factory returns the underlying factory.
func (p *Pool) Factory() *Factory {
	return p.factory
}
