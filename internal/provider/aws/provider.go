// Package aws implements the marketplace provider against AWS Marketplace,
// Pricing, EC2, Cost Explorer and STS.
package aws

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/marketplaceagreement"
	"github.com/aws/aws-sdk-go-v2/service/marketplacecatalog"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/provider"
)

const (
	// marketplaceRegion hosts the catalog, agreement and pricing endpoints.
	marketplaceRegion = "us-east-1"
	catalogName       = "AWSMarketplace"
	roleSessionName   = "contractlens-marketplace"
)

// CatalogAPI is the subset of the marketplace catalog client in use.
type CatalogAPI interface {
	ListEntities(ctx context.Context, in *marketplacecatalog.ListEntitiesInput, optFns ...func(*marketplacecatalog.Options)) (*marketplacecatalog.ListEntitiesOutput, error)
	DescribeEntity(ctx context.Context, in *marketplacecatalog.DescribeEntityInput, optFns ...func(*marketplacecatalog.Options)) (*marketplacecatalog.DescribeEntityOutput, error)
}

// AgreementAPI is the subset of the marketplace agreement client in use.
type AgreementAPI interface {
	SearchAgreements(ctx context.Context, in *marketplaceagreement.SearchAgreementsInput, optFns ...func(*marketplaceagreement.Options)) (*marketplaceagreement.SearchAgreementsOutput, error)
}

// PricingAPI is the subset of the pricing client in use.
type PricingAPI interface {
	GetProducts(ctx context.Context, in *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

// EC2API is the subset of the EC2 client in use.
type EC2API interface {
	ec2.DescribeInstancesAPIClient
	DescribeImages(ctx context.Context, in *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
}

// CostExplorerAPI is the subset of the Cost Explorer client in use.
type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, in *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// STSAPI is the subset of the STS client in use.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Clients groups the AWS service clients a Provider calls.
type Clients struct {
	Catalog      CatalogAPI
	Agreements   AgreementAPI
	Pricing      PricingAPI
	EC2          EC2API
	CostExplorer CostExplorerAPI
	STS          STSAPI
}

// Provider implements provider.MarketplaceProvider for one integration.
type Provider struct {
	name          string
	integrationID uuid.UUID
	region        string
	clients       Clients
	limiter       *rate.Limiter
	maxResults    int
	logger        *slog.Logger
	now           func() time.Time
}

// RetryConfig holds retry settings.
type RetryConfig struct {
	MaxAttempts int
	MaxBackoff  time.Duration
}

var defaultRetry = RetryConfig{MaxAttempts: 3, MaxBackoff: 20 * time.Second}

// NewWithClients wires a Provider around existing clients.
func NewWithClients(integrationID uuid.UUID, region string, clients Clients, limits provider.Limits, logger *slog.Logger) *Provider {
	limit := rate.Inf
	if limits.RPS > 0 {
		limit = rate.Limit(limits.RPS)
	}
	burst := limits.Burst
	if burst < 1 {
		burst = 1
	}
	return &Provider{
		name:          "aws",
		integrationID: integrationID,
		region:        region,
		clients:       clients,
		limiter:       rate.NewLimiter(limit, burst),
		maxResults:    limits.MaxResults,
		logger:        logger,
		now:           time.Now,
	}
}

// NewProvider loads AWS configuration for the credentials and builds a
// Provider. A role ARN is assumed through STS with the external id.
func NewProvider(ctx context.Context, integrationID uuid.UUID, creds model.AWSCredentials, limits provider.Limits, logger *slog.Logger) (*Provider, error) {
	cfg, err := LoadConfig(ctx, creds)
	if err != nil {
		return nil, err
	}

	clients := Clients{
		Catalog: marketplacecatalog.NewFromConfig(cfg, func(o *marketplacecatalog.Options) {
			o.Region = marketplaceRegion
		}),
		Agreements: marketplaceagreement.NewFromConfig(cfg, func(o *marketplaceagreement.Options) {
			o.Region = marketplaceRegion
		}),
		Pricing: pricing.NewFromConfig(cfg, func(o *pricing.Options) {
			o.Region = marketplaceRegion
		}),
		EC2:          ec2.NewFromConfig(cfg),
		CostExplorer: costexplorer.NewFromConfig(cfg),
		STS:          sts.NewFromConfig(cfg),
	}
	return NewWithClients(integrationID, cfg.Region, clients, limits, logger), nil
}

// FromCreds matches provider.AwsFromCredsFunc.
func FromCreds(integrationID uuid.UUID, creds model.AWSCredentials, limits provider.Limits, logger *slog.Logger) (provider.MarketplaceProvider, error) {
	return NewProvider(context.Background(), integrationID, creds, limits, logger)
}

// LoadConfig resolves an aws.Config from stored credentials.
func LoadConfig(ctx context.Context, creds model.AWSCredentials) (aws.Config, error) {
	region := creds.Region
	if region == "" {
		region = marketplaceRegion
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = defaultRetry.MaxAttempts
				o.MaxBackoff = defaultRetry.MaxBackoff
			})
		}),
	}

	if creds.AccessKeyID != "" && creds.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if creds.AssumeRoleARN != "" {
		stsClient := sts.NewFromConfig(cfg)
		roleCreds := stscreds.NewAssumeRoleProvider(stsClient, creds.AssumeRoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = roleSessionName
			o.Duration = time.Hour
			if creds.ExternalID != "" {
				o.ExternalID = aws.String(creds.ExternalID)
			}
		})
		cfg.Credentials = aws.NewCredentialsCache(roleCreds)
	}
	return cfg, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return p.name
}

// CallerIdentity returns the AWS account id of the credentials.
func (p *Provider) CallerIdentity(ctx context.Context) (string, error) {
	if err := p.wait(ctx); err != nil {
		return "", err
	}
	out, err := p.clients.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("get caller identity: %w", err)
	}
	return aws.ToString(out.Account), nil
}

// Health checks the credentials with STS GetCallerIdentity.
func (p *Provider) Health(ctx context.Context) provider.HealthStatus {
	status := provider.HealthStatus{
		LastChecked: p.now(),
		Details:     map[string]any{"region": p.region},
	}

	account, err := p.CallerIdentity(ctx)
	if err != nil {
		status.Healthy = false
		status.Message = fmt.Sprintf("AWS health check failed: %v", err)
		return status
	}
	status.Healthy = true
	status.Message = "AWS credentials valid"
	status.Details["account_id"] = account
	return status
}

// Close cleans up provider resources.
func (p *Provider) Close() error {
	return nil
}

func (p *Provider) wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}
