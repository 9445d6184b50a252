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

package provisioning

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"
	"knative.dev/pkg/logging"

	"github.com/ryanchard/cloud-provisioner/pkg/ledger"
	"github.com/ryanchard/cloud-provisioner/pkg/operator/options"
	"github.com/ryanchard/cloud-provisioner/pkg/providers/instancetype"
	"github.com/ryanchard/cloud-provisioner/pkg/scheduler"
	"github.com/ryanchard/cloud-provisioner/pkg/tenant"
)

// Selector picks at most one launch candidate per idle job per tick: the
// cheapest eligible (type, zone, pricing-mode) combination under the tenant's
// bid cap, escalating to on-demand on timeout or when spot prices creep too
// close to on-demand.
type Selector struct {
	ledger Ledger
	clock  func() time.Time
}

func NewSelector(ledger Ledger) *Selector {
	return &Selector{ledger: ledger, clock: time.Now}
}

// Select assigns job.Launch for every idle job that should get a request
// this tick.
func (s *Selector) Select(ctx context.Context, tenants []*tenant.Tenant, catalog []*instancetype.InstanceType) {
	for _, t := range tenants {
		for _, job := range append([]*scheduler.Job{}, t.IdleJobs...) {
			s.selectForJob(ctx, t, job, catalog)
		}
	}
}

func (s *Selector) selectForJob(ctx context.Context, t *tenant.Tenant, job *scheduler.Job, catalog []*instancetype.InstanceType) {
	eligible := eligibleInstances(catalog, job)
	if len(eligible) == 0 {
		logging.FromContext(ctx).With("job", job.ID).Errorf("failed to find any eligible instances for job")
		return
	}
	candidates := sortedCandidates(eligible, job)
	if len(candidates) == 0 {
		logging.FromContext(ctx).With("job", job.ID).Errorf("failed to find any candidates for job")
		return
	}

	// Escalate to on-demand when the escalation rules fire, then rebuild
	// the candidate list without spot offers and take the cheapest.
	job.OnDemand = s.onDemandNeeded(ctx, t, job, eligible, candidates)
	if job.OnDemand {
		candidates = sortedCandidates(eligible, job)
		job.Launch = candidates[0]
		logging.FromContext(ctx).With("job", job.ID, "instance-type", job.Launch.InstanceType).
			Debugf("launching ondemand for this job")
		return
	}

	s.selectSpot(ctx, t, job, candidates)
}

// onDemandNeeded evaluates the escalation rules in order: idle timeout, the
// job's own on-demand flag, on-demand being outright cheapest, and spot
// sitting too close to the on-demand price. The first two leave the final
// pick to the rebuilt candidate list; the last two pre-assign it.
func (s *Selector) onDemandNeeded(ctx context.Context, t *tenant.Tenant, job *scheduler.Job, eligible []*instancetype.InstanceType, candidates []*instancetype.Request) bool {
	threshold := options.FromContext(ctx).OnDemandPriceThreshold
	cheapest := candidates[0]

	if timedOut := s.timeoutInstance(t, job, eligible); timedOut != nil && timedOut.OnDemandPrice < t.MaxBidPrice {
		job.Launch = instancetype.NewOnDemandRequest(timedOut)
		logging.FromContext(ctx).With("job", job.ID, "instance-type", timedOut.Type).
			Debugf("selected to launch on demand due to timeout")
		return true
	}
	if job.OnDemand {
		return true
	}
	if cheapest.OnDemand && cheapest.ODP < t.MaxBidPrice {
		job.Launch = cheapest
		logging.FromContext(ctx).With("job", job.ID, "instance-type", cheapest.InstanceType).
			Debugf("selected to launch on demand due to ondemand being cheapest")
		return true
	}
	if cheapest.Price > threshold*cheapest.ODP && cheapest.Price < t.MaxBidPrice {
		job.Launch = cheapest
		logging.FromContext(ctx).With("job", job.ID, "instance-type", cheapest.InstanceType, "spot-price", cheapest.Price).
			Debugf("selected to launch on demand due to spot price being close to ondemand price")
		return true
	}
	return false
}

// timeoutInstance returns the cheapest-by-odp eligible type when the tenant
// has a timeout configured and the job has been idle past it.
func (s *Selector) timeoutInstance(t *tenant.Tenant, job *scheduler.Job, eligible []*instancetype.InstanceType) *instancetype.InstanceType {
	if t.Timeout <= 0 {
		return nil
	}
	if s.clock().Unix()-job.ReqTime <= t.Timeout {
		return nil
	}
	return lo.MinBy(eligible, func(a, b *instancetype.InstanceType) bool {
		return a.OnDemandPrice < b.OnDemandPrice
	})
}

// selectSpot walks the sorted candidates and assigns the first one under the
// bid cap whose (type, zone) pair has not already been requested.
func (s *Selector) selectSpot(ctx context.Context, t *tenant.Tenant, job *scheduler.Job, candidates []*instancetype.Request) {
	opts := options.FromContext(ctx)
	logTopOptions(ctx, candidates)

	existing, err := s.ledger.OpenRequests(ctx, t.ID, job.ID)
	if err != nil {
		logging.FromContext(ctx).With("job", job.ID).Errorf("listing open requests, %s", err)
	}
	if len(existing) >= opts.MaxRequests {
		logging.FromContext(ctx).With("job", job.ID).Debugf("too many requests already exist for this job")
		t.RemoveIdleJob(job)
		return
	}

	for _, candidate := range candidates {
		if requestExists(existing, candidate) {
			continue
		}
		if candidate.Price >= t.MaxBidPrice {
			logging.FromContext(ctx).With("job", job.ID, "instance-type", candidate.InstanceType, "price", candidate.Price, "max-bid", t.MaxBidPrice).
				Errorf("unable to launch request as the price is higher than the max bid")
			continue
		}
		bid, ok := bidPrice(t, candidate, opts.BidFloor)
		if !ok {
			logging.FromContext(ctx).With("job", job.ID, "instance-type", candidate.InstanceType).
				Errorf("bid floor exceeds the tenant's max bid, rejecting candidate")
			continue
		}
		candidate.Bid = bid
		job.Launch = candidate
		logging.FromContext(ctx).With("job", job.ID, "instance-type", candidate.InstanceType, "zone", candidate.Zone, "bid", bid).
			Debugf("selected spot instance")
		return
	}
}

// bidPrice computes the tenant's configured fraction of the on-demand price,
// substituting the floor when the computed bid exceeds the cap. The candidate
// is rejected when even the floor exceeds the cap.
func bidPrice(t *tenant.Tenant, candidate *instancetype.Request, floor float64) (float64, bool) {
	bid := t.BidPercent / 100 * candidate.ODP
	if bid <= t.MaxBidPrice {
		return bid, true
	}
	if floor <= t.MaxBidPrice {
		return floor, true
	}
	return 0, false
}

// eligibleInstances filters the catalog to types that satisfy the job's cpu,
// memory and disk requirements.
func eligibleInstances(catalog []*instancetype.InstanceType, job *scheduler.Job) []*instancetype.InstanceType {
	return lo.Filter(catalog, func(it *instancetype.InstanceType, _ int) bool {
		return it.CPUs >= job.ReqCPUs && it.Memory >= job.ReqMem && it.Disk >= job.ReqDisk
	})
}

// sortedCandidates builds the (type, zone, pricing-mode) cross-product and
// sorts it by effective price ascending, insertion order breaking ties. Spot
// offers are excluded for on-demand jobs.
func sortedCandidates(eligible []*instancetype.InstanceType, job *scheduler.Job) []*instancetype.Request {
	var candidates []*instancetype.Request
	for _, it := range eligible {
		candidates = append(candidates, instancetype.NewOnDemandRequest(it))
		if job.OnDemand {
			continue
		}
		zones := lo.Keys(it.Spot)
		sort.Strings(zones)
		for _, zone := range zones {
			candidates = append(candidates, instancetype.NewSpotRequest(it, zone, it.Spot[zone]))
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Price < candidates[j].Price
	})
	return candidates
}

func requestExists(existing []ledger.OpenRequest, candidate *instancetype.Request) bool {
	return lo.ContainsBy(existing, func(open ledger.OpenRequest) bool {
		return open.InstanceType == candidate.InstanceType && open.Zone == candidate.Zone
	})
}

// logTopOptions records the three cheapest options under consideration.
func logTopOptions(ctx context.Context, candidates []*instancetype.Request) {
	top := lo.Slice(candidates, 0, 3)
	logging.FromContext(ctx).
		With("options", lo.Map(top, func(r *instancetype.Request, _ int) string {
			return r.InstanceType + "/" + lo.Ternary(r.Zone == "", "ondemand", r.Zone)
		})).
		Debugf("cheapest options to select from")
}
