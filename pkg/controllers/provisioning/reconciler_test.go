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

package provisioning_test

import (
	"time"

	"github.com/ryanchard/cloud-provisioner/pkg/controllers/provisioning"
	"github.com/ryanchard/cloud-provisioner/pkg/fake"
	"github.com/ryanchard/cloud-provisioner/pkg/ledger"
	"github.com/ryanchard/cloud-provisioner/pkg/scheduler"
	"github.com/ryanchard/cloud-provisioner/pkg/tenant"
	"github.com/ryanchard/cloud-provisioner/pkg/test"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reconciler", func() {
	var reconciler *provisioning.Reconciler
	var tnt *tenant.Tenant
	var job *scheduler.Job

	BeforeEach(func() {
		reconciler = provisioning.NewReconciler(fakeLedger)
		tnt = test.Tenant(test.TenantOptions{})
		job = test.Job(test.JobOptions{ReqCPUs: 4})
		tnt.IdleJobs = []*scheduler.Job{job}
	})

	It("should remove jobs whose fulfilled requests cover the requested cpus", func() {
		for i := 0; i < 2; i++ {
			fakeLedger.Add(&fake.LedgerEntry{
				Entry:       ledger.Entry{Tenant: tnt.ID, JobRunnerID: job.ID, RequestType: ledger.RequestTypeSpot},
				RequestTime: time.Now().Add(-2 * time.Hour),
				Fulfilled:   true,
				CPUs:        2,
			})
		}

		reconciler.Reconcile(ctx, []*tenant.Tenant{tnt})

		Expect(job.Fulfilled).To(BeTrue())
		Expect(tnt.IdleJobs).To(BeEmpty())
	})

	It("should keep jobs whose fulfilled cpus fall short of the request", func() {
		fakeLedger.Add(&fake.LedgerEntry{
			Entry:       ledger.Entry{Tenant: tnt.ID, JobRunnerID: job.ID, RequestType: ledger.RequestTypeSpot},
			RequestTime: time.Now().Add(-2 * time.Hour),
			Fulfilled:   true,
			CPUs:        2,
		})

		reconciler.Reconcile(ctx, []*tenant.Tenant{tnt})

		Expect(job.Fulfilled).To(BeFalse())
		Expect(tnt.IdleJobs).To(ConsistOf(job))
	})

	It("should remove jobs with any fulfilled on-demand request", func() {
		fakeLedger.Add(&fake.LedgerEntry{
			Entry:       ledger.Entry{Tenant: tnt.ID, JobRunnerID: job.ID, RequestType: ledger.RequestTypeOnDemand},
			RequestTime: time.Now().Add(-2 * time.Hour),
			Fulfilled:   true,
			CPUs:        1,
		})

		reconciler.Reconcile(ctx, []*tenant.Tenant{tnt})

		Expect(job.Fulfilled).To(BeTrue())
		Expect(tnt.IdleJobs).To(BeEmpty())
	})

	It("should back off jobs requested within the rate window", func() {
		fakeLedger.Add(&fake.LedgerEntry{
			Entry:       ledger.Entry{Tenant: tnt.ID, JobRunnerID: job.ID, RequestType: ledger.RequestTypeSpot},
			RequestTime: time.Now().Add(-10 * time.Second),
		})

		reconciler.Reconcile(ctx, []*tenant.Tenant{tnt})

		Expect(job.Fulfilled).To(BeFalse())
		Expect(tnt.IdleJobs).To(BeEmpty())
	})

	It("should remove jobs past the lifetime request cap", func() {
		for i := 0; i < 4; i++ {
			fakeLedger.Add(&fake.LedgerEntry{
				Entry:       ledger.Entry{Tenant: tnt.ID, JobRunnerID: job.ID, RequestType: ledger.RequestTypeSpot},
				RequestTime: time.Now().Add(-2 * time.Hour),
			})
		}

		reconciler.Reconcile(ctx, []*tenant.Tenant{tnt})

		Expect(tnt.IdleJobs).To(BeEmpty())
	})

	It("should keep jobs under the cap with no recent requests", func() {
		for i := 0; i < 2; i++ {
			fakeLedger.Add(&fake.LedgerEntry{
				Entry:       ledger.Entry{Tenant: tnt.ID, JobRunnerID: job.ID, RequestType: ledger.RequestTypeSpot},
				RequestTime: time.Now().Add(-2 * time.Hour),
			})
		}

		reconciler.Reconcile(ctx, []*tenant.Tenant{tnt})

		Expect(tnt.IdleJobs).To(ConsistOf(job))
	})

	It("should not mix up requests across jobs", func() {
		fakeLedger.Add(&fake.LedgerEntry{
			Entry:       ledger.Entry{Tenant: tnt.ID, JobRunnerID: 99, RequestType: ledger.RequestTypeSpot},
			RequestTime: time.Now(),
		})

		reconciler.Reconcile(ctx, []*tenant.Tenant{tnt})

		Expect(tnt.IdleJobs).To(ConsistOf(job))
	})
})
