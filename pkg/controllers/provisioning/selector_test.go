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
	"github.com/ryanchard/cloud-provisioner/pkg/providers/instancetype"
	"github.com/ryanchard/cloud-provisioner/pkg/scheduler"
	"github.com/ryanchard/cloud-provisioner/pkg/tenant"
	"github.com/ryanchard/cloud-provisioner/pkg/test"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Selector", func() {
	var selector *provisioning.Selector
	var tnt *tenant.Tenant
	var job *scheduler.Job
	var catalog []*instancetype.InstanceType

	BeforeEach(func() {
		selector = provisioning.NewSelector(fakeLedger)
		tnt = test.Tenant(test.TenantOptions{})
		job = test.Job(test.JobOptions{})
		tnt.IdleJobs = []*scheduler.Job{job}
		catalog = []*instancetype.InstanceType{
			test.InstanceType(test.InstanceTypeOptions{
				Spot: map[string]float64{"us-east-1a": 0.30, "us-east-1b": 0.20},
			}),
		}
	})

	It("should pick the cheapest spot offer and bid the configured fraction of on-demand", func() {
		selector.Select(ctx, []*tenant.Tenant{tnt}, catalog)

		Expect(job.Launch).ToNot(BeNil())
		Expect(job.Launch.OnDemand).To(BeFalse())
		Expect(job.Launch.InstanceType).To(Equal("m3.medium"))
		Expect(job.Launch.Zone).To(Equal("us-east-1b"))
		Expect(job.Launch.Bid).To(Equal(0.5))
	})

	It("should escalate to on-demand once the job exceeds the tenant timeout", func() {
		tnt = test.Tenant(test.TenantOptions{MaxBidPrice: 2.0, Timeout: 3600})
		job = test.Job(test.JobOptions{ReqTime: time.Now().Add(-2 * time.Hour).Unix()})
		tnt.IdleJobs = []*scheduler.Job{job}

		selector.Select(ctx, []*tenant.Tenant{tnt}, catalog)

		Expect(job.OnDemand).To(BeTrue())
		Expect(job.Launch).ToNot(BeNil())
		Expect(job.Launch.OnDemand).To(BeTrue())
		Expect(job.Launch.Zone).To(BeEmpty())
		Expect(job.Launch.Price).To(Equal(1.0))
	})

	It("should not escalate on timeout when on-demand exceeds the bid cap", func() {
		tnt = test.Tenant(test.TenantOptions{Timeout: 3600})
		job = test.Job(test.JobOptions{ReqTime: time.Now().Add(-2 * time.Hour).Unix()})
		tnt.IdleJobs = []*scheduler.Job{job}

		selector.Select(ctx, []*tenant.Tenant{tnt}, catalog)

		Expect(job.Launch).ToNot(BeNil())
		Expect(job.Launch.OnDemand).To(BeFalse())
		Expect(job.Launch.Zone).To(Equal("us-east-1b"))
	})

	It("should escalate when spot creeps close to the on-demand price", func() {
		tnt = test.Tenant(test.TenantOptions{MaxBidPrice: 2.0})
		tnt.IdleJobs = []*scheduler.Job{job}
		catalog[0].Spot = map[string]float64{"us-east-1a": 0.90}

		selector.Select(ctx, []*tenant.Tenant{tnt}, catalog)

		Expect(job.Launch).ToNot(BeNil())
		Expect(job.Launch.OnDemand).To(BeTrue())
		Expect(job.Launch.Zone).To(BeEmpty())
		Expect(job.Launch.Price).To(Equal(1.0))
	})

	It("should prefer on-demand when it is outright cheapest", func() {
		tnt = test.Tenant(test.TenantOptions{MaxBidPrice: 2.0})
		tnt.IdleJobs = []*scheduler.Job{job}
		catalog[0].Spot = map[string]float64{"us-east-1a": 1.50}

		selector.Select(ctx, []*tenant.Tenant{tnt}, catalog)

		Expect(job.Launch).ToNot(BeNil())
		Expect(job.Launch.OnDemand).To(BeTrue())
		Expect(job.Launch.Price).To(Equal(1.0))
	})

	It("should honor the job's own on-demand flag", func() {
		job = test.Job(test.JobOptions{Description: map[string]any{"ondemand": true}})
		tnt.IdleJobs = []*scheduler.Job{job}

		selector.Select(ctx, []*tenant.Tenant{tnt}, catalog)

		Expect(job.Launch).ToNot(BeNil())
		Expect(job.Launch.OnDemand).To(BeTrue())
		Expect(job.Launch.Zone).To(BeEmpty())
		Expect(job.Launch.Price).To(Equal(1.0))
	})

	It("should skip zone pairs that already have an open request", func() {
		catalog[0].Spot = map[string]float64{"us-east-1a": 0.20, "us-east-1b": 0.30}
		fakeLedger.Add(&fake.LedgerEntry{
			Entry:            ledger.Entry{Tenant: tnt.ID, JobRunnerID: job.ID, RequestType: ledger.RequestTypeSpot},
			InstanceTypeName: "m3.medium",
			Zone:             "us-east-1a",
			RequestTime:      time.Now().Add(-2 * time.Hour),
		})

		selector.Select(ctx, []*tenant.Tenant{tnt}, catalog)

		Expect(job.Launch).ToNot(BeNil())
		Expect(job.Launch.Zone).To(Equal("us-east-1b"))
		Expect(job.Launch.Bid).To(Equal(0.5))
	})

	It("should drop the job once the open request cap is reached", func() {
		for _, zone := range []string{"us-east-1a", "us-east-1b", "us-east-1c"} {
			fakeLedger.Add(&fake.LedgerEntry{
				Entry:            ledger.Entry{Tenant: tnt.ID, JobRunnerID: job.ID, RequestType: ledger.RequestTypeSpot},
				InstanceTypeName: "m3.medium",
				Zone:             zone,
				RequestTime:      time.Now().Add(-2 * time.Hour),
			})
		}

		selector.Select(ctx, []*tenant.Tenant{tnt}, catalog)

		Expect(job.Launch).To(BeNil())
		Expect(tnt.IdleJobs).To(BeEmpty())
	})

	It("should substitute the bid floor when the percent bid exceeds the cap", func() {
		tnt = test.Tenant(test.TenantOptions{BidPercent: 80})
		tnt.IdleJobs = []*scheduler.Job{job}
		catalog[0].Spot = map[string]float64{"us-east-1a": 0.30}

		selector.Select(ctx, []*tenant.Tenant{tnt}, catalog)

		Expect(job.Launch).ToNot(BeNil())
		Expect(job.Launch.Bid).To(Equal(0.40))
	})

	It("should reject candidates when even the bid floor exceeds the cap", func() {
		tnt = test.Tenant(test.TenantOptions{MaxBidPrice: 0.3})
		tnt.IdleJobs = []*scheduler.Job{job}
		catalog[0].Spot = map[string]float64{"us-east-1a": 0.20}

		selector.Select(ctx, []*tenant.Tenant{tnt}, catalog)

		Expect(job.Launch).To(BeNil())
		Expect(tnt.IdleJobs).To(ConsistOf(job))
	})

	It("should make no request when every offer is at or above the bid cap", func() {
		catalog[0].Spot = map[string]float64{"us-east-1a": 0.55}

		selector.Select(ctx, []*tenant.Tenant{tnt}, catalog)

		Expect(job.Launch).To(BeNil())
		Expect(tnt.IdleJobs).To(ConsistOf(job))
	})

	It("should filter out instance types too small for the job", func() {
		catalog = []*instancetype.InstanceType{
			test.InstanceType(test.InstanceTypeOptions{
				ID: 1, Type: "t1.micro", OnDemandPrice: 0.5, CPUs: 1, Memory: 1, Disk: 5,
				Spot: map[string]float64{"us-east-1a": 0.05},
			}),
			test.InstanceType(test.InstanceTypeOptions{
				ID:   2,
				Spot: map[string]float64{"us-east-1a": 0.30},
			}),
		}

		selector.Select(ctx, []*tenant.Tenant{tnt}, catalog)

		Expect(job.Launch).ToNot(BeNil())
		Expect(job.Launch.InstanceType).To(Equal("m3.medium"))
		Expect(job.Launch.Zone).To(Equal("us-east-1a"))
	})

	It("should leave jobs without any eligible instance untouched", func() {
		job = test.Job(test.JobOptions{ReqCPUs: 64})
		tnt.IdleJobs = []*scheduler.Job{job}

		selector.Select(ctx, []*tenant.Tenant{tnt}, catalog)

		Expect(job.Launch).To(BeNil())
		Expect(tnt.IdleJobs).To(ConsistOf(job))
	})
})
