package aws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/marketplaceagreement"
	agtypes "github.com/aws/aws-sdk-go-v2/service/marketplaceagreement/types"
	"github.com/aws/aws-sdk-go-v2/service/marketplacecatalog"
	cattypes "github.com/aws/aws-sdk-go-v2/service/marketplacecatalog/types"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractlens/backend/internal/marketplace"
	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/provider"
)

const hourlyPriceDoc = `{"product":{"sku":"SKU1"},"terms":{"OnDemand":{"t1":{"priceDimensions":{"d1":{"unit":"Hrs","pricePerUnit":{"USD":"0.10"}}}}}}}`

type fakeCatalog struct {
	entities    map[string][]cattypes.EntitySummary
	details     map[string]string
	listErr     error
	listCalls   int
	describeIDs []string
}

func (f *fakeCatalog) ListEntities(_ context.Context, in *marketplacecatalog.ListEntitiesInput, _ ...func(*marketplacecatalog.Options)) (*marketplacecatalog.ListEntitiesOutput, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &marketplacecatalog.ListEntitiesOutput{EntitySummaryList: f.entities[aws.ToString(in.EntityType)]}, nil
}

func (f *fakeCatalog) DescribeEntity(_ context.Context, in *marketplacecatalog.DescribeEntityInput, _ ...func(*marketplacecatalog.Options)) (*marketplacecatalog.DescribeEntityOutput, error) {
	id := aws.ToString(in.EntityId)
	f.describeIDs = append(f.describeIDs, id)
	d, ok := f.details[id]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &marketplacecatalog.DescribeEntityOutput{Details: aws.String(d)}, nil
}

type fakeAgreements struct {
	summaries []agtypes.AgreementViewSummary
	err       error
	statuses  [][]string
}

func (f *fakeAgreements) SearchAgreements(_ context.Context, in *marketplaceagreement.SearchAgreementsInput, _ ...func(*marketplaceagreement.Options)) (*marketplaceagreement.SearchAgreementsOutput, error) {
	for _, flt := range in.Filters {
		if aws.ToString(flt.Name) == "Status" {
			f.statuses = append(f.statuses, flt.Values)
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &marketplaceagreement.SearchAgreementsOutput{AgreementViewSummaries: f.summaries}, nil
}

type fakePricing struct {
	docs map[string]string
}

func (f *fakePricing) GetProducts(_ context.Context, in *pricing.GetProductsInput, _ ...func(*pricing.Options)) (*pricing.GetProductsOutput, error) {
	code := aws.ToString(in.Filters[0].Value)
	if doc, ok := f.docs[code]; ok {
		return &pricing.GetProductsOutput{PriceList: []string{doc}}, nil
	}
	return &pricing.GetProductsOutput{}, nil
}

type fakeEC2 struct {
	instances []ec2types.Instance
	images    []ec2types.Image
	err       error
}

func (f *fakeEC2) DescribeInstances(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{Instances: f.instances}}}, nil
}

func (f *fakeEC2) DescribeImages(_ context.Context, in *ec2.DescribeImagesInput, _ ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	want := map[string]bool{}
	for _, id := range in.ImageIds {
		want[id] = true
	}
	var out []ec2types.Image
	for _, img := range f.images {
		if want[aws.ToString(img.ImageId)] {
			out = append(out, img)
		}
	}
	return &ec2.DescribeImagesOutput{Images: out}, nil
}

type fakeCE struct {
	out *costexplorer.GetCostAndUsageOutput
}

func (f *fakeCE) GetCostAndUsage(_ context.Context, _ *costexplorer.GetCostAndUsageInput, _ ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
	return f.out, nil
}

type fakeSTS struct {
	err error
}

func (f *fakeSTS) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String("123456789012")}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProvider(clients Clients) *Provider {
	p := NewWithClients(uuid.MustParse("11111111-1111-1111-1111-111111111111"), "us-east-1", clients,
		provider.Limits{MaxResults: 5}, discardLogger())
	p.now = func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func acmeCatalog() *fakeCatalog {
	return &fakeCatalog{
		entities: map[string][]cattypes.EntitySummary{
			"SaaSProduct": {
				{EntityId: aws.String("prod-acme"), Name: aws.String("Acme Analytics"), EntityType: aws.String("SaaSProduct")},
				{EntityId: aws.String("prod-other"), Name: aws.String("Unrelated Thing"), EntityType: aws.String("SaaSProduct")},
			},
		},
		details: map[string]string{
			"prod-acme":  `{"Vendor":{"Name":"Acme Corp"},"Description":{"ShortDescription":"Analytics for everyone"}}`,
			"offer-1":    `{"Name":"Acme Analytics Pro"}`,
			"prod-acme2": `{"Description":{"ProductTitle":"Acme Analytics Enterprise"}}`,
		},
	}
}

func activeAgreement() agtypes.AgreementViewSummary {
	return agtypes.AgreementViewSummary{
		AgreementId:   aws.String("agmt-1"),
		AgreementType: aws.String("PurchaseAgreement"),
		Status:        agtypes.AgreementStatusActive,
		Proposer:      &agtypes.Proposer{AccountId: aws.String("999999999999")},
		ProposalSummary: &agtypes.ProposalSummary{
			OfferId:   aws.String("offer-1"),
			Resources: []agtypes.Resource{{Id: aws.String("prod-acme2")}},
		},
	}
}

func TestSearch_ScoresFiltersAndPrices(t *testing.T) {
	catalog := acmeCatalog()
	agreements := &fakeAgreements{summaries: []agtypes.AgreementViewSummary{activeAgreement()}}
	p := newTestProvider(Clients{
		Catalog:    catalog,
		Agreements: agreements,
		Pricing:    &fakePricing{docs: map[string]string{"prod-acme": hourlyPriceDoc}},
	})

	results, err := p.Search(context.Background(), provider.SearchRequest{
		Query: marketplace.Query{Name: "Acme Analytics"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, "prod-acme", first.ProductID)
	assert.Equal(t, "Acme Corp", first.Vendor)
	require.NotNil(t, first.MatchScoreHint)
	assert.InDelta(t, 1.0, *first.MatchScoreHint, 1e-9)
	require.NotNil(t, first.MonthlyCost)
	assert.Equal(t, "73", first.MonthlyCost.String())

	second := results[1]
	assert.Equal(t, "agmt-1", second.ProductID)
	assert.Equal(t, "Acme Analytics Pro", second.ProductName)
	assert.Nil(t, second.MonthlyCost, "no price list for the agreement product")
	assert.Equal(t, model.AvailabilityAvailable, second.Availability)

	assert.NotContains(t, catalog.describeIDs, "prod-other", "hopeless names are not described")
	assert.Equal(t, [][]string{activeStatuses}, agreements.statuses)
	assert.Equal(t, len(allEntityTypes), catalog.listCalls)
}

func TestSearch_TruncatesToMaxResults(t *testing.T) {
	p := newTestProvider(Clients{
		Catalog:    acmeCatalog(),
		Agreements: &fakeAgreements{summaries: []agtypes.AgreementViewSummary{activeAgreement()}},
		Pricing:    &fakePricing{},
	})
	results, err := p.Search(context.Background(), provider.SearchRequest{
		Query:       marketplace.Query{Name: "Acme Analytics"},
		ProductType: "SaaS",
		MaxResults:  1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "prod-acme", results[0].ProductID)
}

func TestSearch_AgreementValidationErrorIsEmpty(t *testing.T) {
	p := newTestProvider(Clients{
		Catalog:    acmeCatalog(),
		Agreements: &fakeAgreements{err: &agtypes.ValidationException{Message: aws.String("no agreements")}},
		Pricing:    &fakePricing{},
	})
	results, err := p.Search(context.Background(), provider.SearchRequest{Query: marketplace.Query{Name: "Acme Analytics"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearch_BothSourcesFail(t *testing.T) {
	p := newTestProvider(Clients{
		Catalog:    &fakeCatalog{listErr: errors.New("AccessDenied")},
		Agreements: &fakeAgreements{err: errors.New("ThrottlingException")},
		Pricing:    &fakePricing{},
	})
	_, err := p.Search(context.Background(), provider.SearchRequest{Query: marketplace.Query{Name: "Acme"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
	assert.Contains(t, err.Error(), "ThrottlingException")
}

func TestSearch_EmptyQuery(t *testing.T) {
	catalog := acmeCatalog()
	p := newTestProvider(Clients{Catalog: catalog, Agreements: &fakeAgreements{}, Pricing: &fakePricing{}})
	results, err := p.Search(context.Background(), provider.SearchRequest{Query: marketplace.Query{Name: "  "}})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, catalog.listCalls)
}

func TestSyncProducts(t *testing.T) {
	expired := activeAgreement()
	expired.AgreementId = aws.String("agmt-2")
	expired.Status = agtypes.AgreementStatusExpired

	agreements := &fakeAgreements{summaries: []agtypes.AgreementViewSummary{activeAgreement(), expired}}
	p := newTestProvider(Clients{
		Catalog:    acmeCatalog(),
		Agreements: agreements,
		Pricing:    &fakePricing{docs: map[string]string{"prod-acme2": hourlyPriceDoc}},
		EC2: &fakeEC2{
			instances: []ec2types.Instance{
				{InstanceId: aws.String("i-1"), ImageId: aws.String("ami-mkt"), InstanceType: ec2types.InstanceTypeM5Large,
					State: &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning}},
				{InstanceId: aws.String("i-2"), ImageId: aws.String("ami-plain"),
					State: &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning}},
			},
			images: []ec2types.Image{
				{ImageId: aws.String("ami-mkt"), Name: aws.String("Acme Firewall AMI"), OwnerId: aws.String("679593333241"),
					ProductCodes: []ec2types.ProductCode{{ProductCodeId: aws.String("code-1")}}},
				{ImageId: aws.String("ami-plain"), Name: aws.String("Ubuntu")},
			},
		},
	})

	out, err := p.SyncProducts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, out.Failed)
	require.Len(t, out.Products, 3)

	byID := map[string]model.ExternalProduct{}
	for _, prod := range out.Products {
		byID[prod.ProductID] = prod
	}
	require.Contains(t, byID, "agmt-2")
	assert.Equal(t, model.AvailabilityUnavailable, byID["agmt-2"].Availability)
	require.NotNil(t, byID["agmt-1"].MonthlyCost)

	inst := byID["ec2-i-1"]
	assert.Equal(t, marketplace.ProductTypeEC2Instance, inst.ProductType)
	assert.Equal(t, "Acme Firewall AMI", inst.ProductName)
	assert.Equal(t, model.SourceInstance, inst.Source)
	assert.NotContains(t, byID, "ec2-i-2")

	assert.Equal(t, [][]string{allStatuses}, agreements.statuses)
}

func TestSyncProducts_PartialFailure(t *testing.T) {
	p := newTestProvider(Clients{
		Catalog:    acmeCatalog(),
		Agreements: &fakeAgreements{summaries: []agtypes.AgreementViewSummary{activeAgreement()}},
		Pricing:    &fakePricing{},
		EC2:        &fakeEC2{err: errors.New("UnauthorizedOperation")},
	})
	out, err := p.SyncProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Failed)
	assert.Len(t, out.Products, 1)
}

func TestServiceUsage(t *testing.T) {
	p := newTestProvider(Clients{CostExplorer: &fakeCE{out: &costexplorer.GetCostAndUsageOutput{
		ResultsByTime: []cetypes.ResultByTime{{
			TimePeriod: &cetypes.DateInterval{Start: aws.String("2025-01-01"), End: aws.String("2025-02-01")},
			Groups: []cetypes.Group{
				{Keys: []string{"Amazon Elastic Compute Cloud - Compute"}, Metrics: map[string]cetypes.MetricValue{
					"UnblendedCost": {Amount: aws.String("1234.5678"), Unit: aws.String("USD")},
					"UsageQuantity": {Amount: aws.String("720"), Unit: aws.String("N/A")},
				}},
				{Keys: []string{"AWS Marketplace"}, Metrics: map[string]cetypes.MetricValue{
					"UnblendedCost": {Amount: aws.String("not-a-number")},
				}},
			},
		}},
	}}})

	rows, err := p.ServiceUsage(context.Background(),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1234.5678", rows[0].Cost.String())
	assert.Equal(t, "720", rows[0].UsageQuantity.String())
	assert.Equal(t, model.CurrencyUSD, rows[0].Currency)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), rows[0].PeriodStart)
	assert.True(t, rows[1].Cost.IsZero())
}

func TestHealth(t *testing.T) {
	ok := newTestProvider(Clients{STS: &fakeSTS{}})
	status := ok.Health(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "123456789012", status.Details["account_id"])

	bad := newTestProvider(Clients{STS: &fakeSTS{err: errors.New("InvalidClientTokenId")}})
	status = bad.Health(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Message, "InvalidClientTokenId")
}

func TestAccountFromRoleARN(t *testing.T) {
	account, err := AccountFromRoleARN("arn:aws:iam::123456789012:role/ContractManagerIntegrationRole")
	require.NoError(t, err)
	assert.Equal(t, "123456789012", account)

	for _, arn := range []string{
		"",
		"arn:aws:iam::12345:role/ContractManagerIntegrationRole",
		"arn:aws:iam::123456789012:role/SomeOtherRole",
		"arn:aws:iam::123456789012:user/ContractManagerIntegrationRole",
	} {
		_, err := AccountFromRoleARN(arn)
		assert.ErrorIs(t, err, ErrInvalidRoleARN, arn)
	}
}

func TestRoleTemplateAndStackURL(t *testing.T) {
	tmpl := RoleTemplate("ext-123", "564339401748")
	params := tmpl["Parameters"].(map[string]any)
	assert.Equal(t, "ext-123", params["ExternalId"].(map[string]any)["Default"])

	stack, err := StackURL("eu-west-1", "ext-123", "564339401748", tmpl)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stack, "https://console.aws.amazon.com/cloudformation/home?region=eu-west-1#/stacks/create/review?"))

	q, err := url.ParseQuery(stack[strings.Index(stack, "review?")+len("review?"):])
	require.NoError(t, err)
	assert.Equal(t, "ContractManagerIntegration", q.Get("stackName"))
	assert.Equal(t, "ext-123", q.Get("param_ExternalId"))
	assert.Contains(t, q.Get("templateBody"), RoleName)
}
