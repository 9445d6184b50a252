/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pricing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"go.uber.org/multierr"
	"knative.dev/pkg/logging"

	"github.com/ryanchard/cloud-provisioner/pkg/providers/instancetype"
	"github.com/ryanchard/cloud-provisioner/pkg/tenant"
)

const productDescriptionLinux = "Linux/UNIX"

// Provider refreshes the per-zone spot price snapshot on the instance
// catalog. Prices are point-in-time: the history query is bounded to a single
// instant so only the current price per zone comes back. Queries run under
// the price tenant's credentials, so the client is built per refresh.
type Provider struct {
	ec2For func(*tenant.Tenant) ec2iface.EC2API
	clock  func() time.Time
}

func NewProvider(ec2For func(*tenant.Tenant) ec2iface.EC2API) *Provider {
	return &Provider{ec2For: ec2For, clock: time.Now}
}

// UpdateSpotPrices fills InstanceType.Spot for every cataloged type using the
// given tenant's credentials. A failure on one type does not stop the
// remaining types from refreshing.
func (p *Provider) UpdateSpotPrices(ctx context.Context, priceTenant *tenant.Tenant, instanceTypes []*instancetype.InstanceType) error {
	ec2api := p.ec2For(priceTenant)
	now := p.clock().UTC()
	var errs error
	totalOfferings := 0
	for _, it := range instanceTypes {
		if err := p.updateSpotPricesFor(ctx, ec2api, it, now); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("refreshing spot prices for %s, %w", it.Type, err))
			continue
		}
		totalOfferings += len(it.Spot)
	}
	logging.FromContext(ctx).With(
		"instance-type-count", len(instanceTypes),
		"offering-count", totalOfferings).Debugf("updated spot pricing")
	return errs
}

func (p *Provider) updateSpotPricesFor(ctx context.Context, ec2api ec2iface.EC2API, it *instancetype.InstanceType, now time.Time) error {
	return ec2api.DescribeSpotPriceHistoryPagesWithContext(ctx,
		&ec2.DescribeSpotPriceHistoryInput{
			InstanceTypes:       aws.StringSlice([]string{it.Type}),
			ProductDescriptions: aws.StringSlice([]string{productDescriptionLinux}),
			// A zero-width window returns the latest price per zone.
			StartTime: aws.Time(now),
			EndTime:   aws.Time(now),
		},
		p.spotPage(ctx, it),
	)
}

func (p *Provider) spotPage(ctx context.Context, it *instancetype.InstanceType) func(output *ec2.DescribeSpotPriceHistoryOutput, b bool) bool {
	return func(output *ec2.DescribeSpotPriceHistoryOutput, b bool) bool {
		for _, sph := range output.SpotPriceHistory {
			spotPrice, err := strconv.ParseFloat(aws.StringValue(sph.SpotPrice), 64)
			// these errors shouldn't occur, but if the pricing data does have an error, we ignore the record
			if err != nil {
				logging.FromContext(ctx).Debugf("unable to parse price record %#v", sph)
				continue
			}
			it.Spot[aws.StringValue(sph.AvailabilityZone)] = spotPrice
		}
		return true
	}
}
