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

// Package provisioning drives the periodic provisioning decision loop: probe
// the job queue, reconcile against the request ledger, refresh catalog and
// prices, select one request per idle job, and place it.
package provisioning

import (
	"context"
	"time"

	"github.com/samber/lo"
	"knative.dev/pkg/logging"

	"github.com/ryanchard/cloud-provisioner/pkg/operator/options"
	"github.com/ryanchard/cloud-provisioner/pkg/tenant"
)

// Provisioner runs the control loop. One tick is the unit of atomicity for
// all in-memory state; only the ledger outlives a tick.
type Provisioner struct {
	tenants    TenantLoader
	scheduler  Scheduler
	reconciler *Reconciler
	selector   *Selector
	catalog    Catalog
	prices     PriceView
	requester  Requester
}

func NewProvisioner(tenants TenantLoader, sched Scheduler, ledger Ledger, catalog Catalog, prices PriceView, requester Requester) *Provisioner {
	return &Provisioner{
		tenants:    tenants,
		scheduler:  sched,
		reconciler: NewReconciler(ledger),
		selector:   NewSelector(ledger),
		catalog:    catalog,
		prices:     prices,
		requester:  requester,
	}
}

// Run ticks until the context is cancelled, sleeping run_rate seconds between
// ticks. Nothing inside a tick is fatal; errors are logged and the loop
// converges over successive ticks.
func (p *Provisioner) Run(ctx context.Context) {
	runRate := time.Duration(options.FromContext(ctx).RunRate) * time.Second
	for {
		p.Tick(ctx)
		select {
		case <-ctx.Done():
			logging.FromContext(ctx).Infof("shutting down provisioning loop")
			return
		case <-time.After(runRate):
		}
	}
}

// Tick executes one pass of the decision loop.
func (p *Provisioner) Tick(ctx context.Context) {
	tenants, err := p.tenants.Load(ctx)
	if err != nil {
		logging.FromContext(ctx).Errorf("loading tenants, %s", err)
		return
	}

	jobs, err := p.scheduler.GetGlobalQueue(ctx)
	if err != nil {
		logging.FromContext(ctx).Errorf("reading the global queue, %s", err)
		return
	}
	p.scheduler.ProcessGlobalQueue(ctx, jobs, tenants)

	p.reconciler.Reconcile(ctx, tenants)

	// provisioning needs a tenant both for jobs and for price credentials
	if len(tenants) == 0 {
		logging.FromContext(ctx).Debugf("no tenants found, skipping provisioning")
		return
	}
	// a tick with nothing to provision makes no cloud calls
	if lo.EveryBy(tenants, func(t *tenant.Tenant) bool { return len(t.IdleJobs) == 0 }) {
		logging.FromContext(ctx).Debugf("no idle jobs found, skipping provisioning")
		return
	}

	catalog, err := p.catalog.List(ctx)
	if err != nil {
		logging.FromContext(ctx).Errorf("loading the instance catalog, %s", err)
		return
	}
	if err := p.prices.UpdateSpotPrices(ctx, tenants[0], catalog); err != nil {
		logging.FromContext(ctx).Errorf("refreshing spot prices, %s", err)
	}

	p.selector.Select(ctx, tenants, catalog)
	for _, t := range tenants {
		p.requester.RequestResources(ctx, t)
	}
	// drain jobs whose requests were just placed so the idle working sets
	// end the tick consistent with the ledger
	p.reconciler.Reconcile(ctx, tenants)
}
