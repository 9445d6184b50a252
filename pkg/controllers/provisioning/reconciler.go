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
	"time"

	"github.com/samber/lo"
	"knative.dev/pkg/logging"

	"github.com/ryanchard/cloud-provisioner/pkg/operator/options"
	"github.com/ryanchard/cloud-provisioner/pkg/scheduler"
	"github.com/ryanchard/cloud-provisioner/pkg/tenant"
)

// Reconciler drains the idle set of jobs that no longer need a request:
// jobs whose prior requests were fulfilled, jobs requested too recently, and
// jobs at the lifetime request cap. It runs before the selector so the
// selector only ever sees jobs that genuinely need capacity.
type Reconciler struct {
	ledger Ledger
}

func NewReconciler(ledger Ledger) *Reconciler {
	return &Reconciler{ledger: ledger}
}

// Reconcile applies both phases to every tenant. Database errors are logged
// and treated as "no data": a job is then considered not yet fulfilled, and
// over-requesting stays bounded by the cap check.
func (r *Reconciler) Reconcile(ctx context.Context, tenants []*tenant.Tenant) {
	for _, t := range tenants {
		r.markFulfilled(ctx, t)
		r.throttle(ctx, t)
	}
}

// markFulfilled flags jobs whose fulfilled requests supply the requested
// cpus, or that have any fulfilled on-demand request, and removes them from
// the idle set.
func (r *Reconciler) markFulfilled(ctx context.Context, t *tenant.Tenant) {
	for _, job := range t.IdleJobs {
		cpus, err := r.ledger.FulfilledCPUs(ctx, t.ID, job.ID)
		if err != nil {
			logging.FromContext(ctx).With("job", job.ID).Errorf("summing fulfilled cpus, %s", err)
		}
		if cpus >= job.ReqCPUs {
			job.Fulfilled = true
		}
		ondemand, err := r.ledger.HasOnDemandFulfillment(ctx, t.ID, job.ID)
		if err != nil {
			logging.FromContext(ctx).With("job", job.ID).Errorf("checking ondemand fulfillment, %s", err)
		}
		if ondemand {
			job.Fulfilled = true
		}
	}
	t.IdleJobs = lo.Reject(t.IdleJobs, func(job *scheduler.Job, _ int) bool {
		if job.Fulfilled {
			logging.FromContext(ctx).With("job", job.ID).Debugf("removing fulfilled job from idle jobs")
		}
		return job.Fulfilled
	})
}

// throttle removes jobs that were requested within the tenant's request_rate
// window or that have hit the lifetime request cap.
func (r *Reconciler) throttle(ctx context.Context, t *tenant.Tenant) {
	maxRequests := options.FromContext(ctx).MaxRequests
	window := time.Duration(t.RequestRate) * time.Second
	// iterate a snapshot since jobs are removed mid-walk
	for _, job := range append([]*scheduler.Job{}, t.IdleJobs...) {
		recent, err := r.ledger.CountRecent(ctx, t.ID, job.ID, window)
		if err != nil {
			logging.FromContext(ctx).With("job", job.ID).Errorf("counting recent requests, %s", err)
		}
		if recent > 0 {
			logging.FromContext(ctx).With("job", job.ID, "request-rate", t.RequestRate).
				Debugf("request made within the rate window, backing off")
			t.RemoveIdleJob(job)
			continue
		}
		total, err := r.ledger.Count(ctx, t.ID, job.ID)
		if err != nil {
			logging.FromContext(ctx).With("job", job.ID).Errorf("counting requests, %s", err)
		}
		if total > maxRequests {
			logging.FromContext(ctx).With("job", job.ID, "requests", total).
				Warnf("too many outstanding requests, removing idle job")
			t.RemoveIdleJob(job)
		}
	}
}
