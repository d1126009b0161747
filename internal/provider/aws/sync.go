package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/shopspring/decimal"

	"github.com/contractlens/backend/internal/marketplace"
	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/provider"
)

const (
	instancePageSize = 100
	imageBatchSize   = 100
)

// SyncProducts collects every purchase agreement and every EC2 instance
// launched from an AMI with marketplace product codes. Records that fail to
// normalize are counted, not fatal; the sync fails only when both sources do.
func (p *Provider) SyncProducts(ctx context.Context) (*provider.SyncOutput, error) {
	fetchedAt := p.now().UTC()
	out := &provider.SyncOutput{}

	agreements, agErr := p.listAgreements(ctx, allStatuses)
	if agErr != nil {
		p.logger.Warn("agreement sync failed", "error", agErr)
		out.Failed++
	}
	instances, ec2Err := p.marketplaceInstances(ctx)
	if ec2Err != nil {
		p.logger.Warn("instance sync failed", "error", ec2Err)
		out.Failed++
	}
	if agErr != nil && ec2Err != nil {
		return out, fmt.Errorf("product sync: %w", errors.Join(agErr, ec2Err))
	}

	products := make([]model.ExternalProduct, 0, len(agreements)+len(instances))
	for i := range agreements {
		raw := marketplace.SearchResult{
			IntegrationID: p.integrationID,
			Agreement:     &agreements[i],
			Pricing:       p.priceFor(ctx, agreements[i].ResourceID),
			FetchedAt:     fetchedAt,
		}
		product, err := marketplace.Normalize(raw)
		if err != nil {
			p.logger.Debug("skipping agreement", "error", err)
			out.Failed++
			continue
		}
		products = append(products, product)
	}
	for i := range instances {
		product, err := marketplace.Normalize(marketplace.SearchResult{
			IntegrationID: p.integrationID,
			Instance:      &instances[i],
			FetchedAt:     fetchedAt,
		})
		if err != nil {
			p.logger.Debug("skipping instance", "error", err)
			out.Failed++
			continue
		}
		products = append(products, product)
	}

	out.Products = marketplace.Dedupe(products)
	return out, nil
}

// marketplaceInstances lists instances and keeps those whose image carries
// product codes.
func (p *Provider) marketplaceInstances(ctx context.Context) ([]marketplace.MarketplaceInstance, error) {
	var (
		instances []marketplace.MarketplaceInstance
		imageIDs  []string
		seen      = map[string]bool{}
	)

	pager := ec2.NewDescribeInstancesPaginator(p.clients.EC2, &ec2.DescribeInstancesInput{
		MaxResults: aws.Int32(instancePageSize),
	})
	for pager.HasMorePages() {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}
		for _, res := range page.Reservations {
			for _, inst := range res.Instances {
				imageID := aws.ToString(inst.ImageId)
				if imageID == "" {
					continue
				}
				mi := marketplace.MarketplaceInstance{
					InstanceID:   aws.ToString(inst.InstanceId),
					InstanceType: string(inst.InstanceType),
					ImageID:      imageID,
				}
				if inst.State != nil {
					mi.State = string(inst.State.Name)
				}
				instances = append(instances, mi)
				if !seen[imageID] {
					seen[imageID] = true
					imageIDs = append(imageIDs, imageID)
				}
			}
		}
	}

	type imageInfo struct {
		name  string
		owner string
		codes []string
	}
	images := map[string]imageInfo{}
	for start := 0; start < len(imageIDs); start += imageBatchSize {
		end := min(start+imageBatchSize, len(imageIDs))
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		out, err := p.clients.EC2.DescribeImages(ctx, &ec2.DescribeImagesInput{ImageIds: imageIDs[start:end]})
		if err != nil {
			return nil, fmt.Errorf("describe images: %w", err)
		}
		for _, img := range out.Images {
			if len(img.ProductCodes) == 0 {
				continue
			}
			info := imageInfo{name: aws.ToString(img.Name), owner: aws.ToString(img.OwnerId)}
			for _, pc := range img.ProductCodes {
				info.codes = append(info.codes, aws.ToString(pc.ProductCodeId))
			}
			images[aws.ToString(img.ImageId)] = info
		}
	}

	kept := instances[:0]
	for _, mi := range instances {
		info, ok := images[mi.ImageID]
		if !ok {
			continue
		}
		mi.ImageName = info.name
		mi.OwnerID = info.owner
		mi.ProductCodes = info.codes
		kept = append(kept, mi)
	}
	return kept, nil
}

// ServiceUsage returns monthly unblended cost per AWS service between start
// (inclusive) and end (exclusive).
func (p *Provider) ServiceUsage(ctx context.Context, start, end time.Time) ([]model.ServiceUsage, error) {
	in := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(start.Format(time.DateOnly)),
			End:   aws.String(end.Format(time.DateOnly)),
		},
		Granularity: cetypes.GranularityMonthly,
		Metrics:     []string{"UnblendedCost", "UsageQuantity"},
		GroupBy: []cetypes.GroupDefinition{{
			Type: cetypes.GroupDefinitionTypeDimension,
			Key:  aws.String("SERVICE"),
		}},
	}

	var rows []model.ServiceUsage
	for {
		if err := p.wait(ctx); err != nil {
			return rows, err
		}
		out, err := p.clients.CostExplorer.GetCostAndUsage(ctx, in)
		if err != nil {
			return rows, fmt.Errorf("get cost and usage: %w", err)
		}

		for _, result := range out.ResultsByTime {
			var periodStart, periodEnd time.Time
			if result.TimePeriod != nil {
				periodStart, _ = time.Parse(time.DateOnly, aws.ToString(result.TimePeriod.Start))
				periodEnd, _ = time.Parse(time.DateOnly, aws.ToString(result.TimePeriod.End))
			}
			for _, group := range result.Groups {
				if len(group.Keys) == 0 {
					continue
				}
				cost, currency := metricAmount(group.Metrics, "UnblendedCost")
				quantity, _ := metricAmount(group.Metrics, "UsageQuantity")
				rows = append(rows, model.ServiceUsage{
					IntegrationID: p.integrationID,
					ServiceName:   group.Keys[0],
					PeriodStart:   periodStart,
					PeriodEnd:     periodEnd,
					Cost:          cost,
					UsageQuantity: quantity,
					Currency:      currency,
				})
			}
		}

		if aws.ToString(out.NextPageToken) == "" {
			break
		}
		in.NextPageToken = out.NextPageToken
	}
	return rows, nil
}

func metricAmount(metrics map[string]cetypes.MetricValue, name string) (decimal.Decimal, model.Currency) {
	m, ok := metrics[name]
	if !ok || m.Amount == nil {
		return decimal.Zero, model.CurrencyUSD
	}
	amount, err := decimal.NewFromString(*m.Amount)
	if err != nil {
		return decimal.Zero, model.CurrencyUSD
	}
	currency := model.CurrencyUSD
	if unit := aws.ToString(m.Unit); len(unit) == 3 {
		currency = model.Currency(unit)
	}
	return amount, currency
}
