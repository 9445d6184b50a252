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
	"errors"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"

	"github.com/ryanchard/cloud-provisioner/pkg/controllers/provisioning"
	"github.com/ryanchard/cloud-provisioner/pkg/fake"
	"github.com/ryanchard/cloud-provisioner/pkg/ledger"
	"github.com/ryanchard/cloud-provisioner/pkg/providers/instance"
	"github.com/ryanchard/cloud-provisioner/pkg/providers/instancetype"
	"github.com/ryanchard/cloud-provisioner/pkg/providers/launchtemplate"
	"github.com/ryanchard/cloud-provisioner/pkg/scheduler"
	"github.com/ryanchard/cloud-provisioner/pkg/tenant"
	"github.com/ryanchard/cloud-provisioner/pkg/test"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Provisioner", func() {
	var tnt *tenant.Tenant
	var job *scheduler.Job
	var loader *tenantLoader
	var queue *queueScheduler
	var catalog *staticCatalog
	var prices *staticPrices

	newProvisioner := func() *provisioning.Provisioner {
		requester := instance.NewProvider(fakeLedger, launchtemplate.NewProvider(cloudInitPath),
			func(*tenant.Tenant) ec2iface.EC2API { return fakeEC2 })
		return provisioning.NewProvisioner(loader, queue, fakeLedger, catalog, prices, requester)
	}

	BeforeEach(func() {
		tnt = test.Tenant(test.TenantOptions{})
		job = test.Job(test.JobOptions{})
		loader = &tenantLoader{tenants: []*tenant.Tenant{tnt}}
		queue = &queueScheduler{jobs: []*scheduler.Job{job}}
		catalog = &staticCatalog{items: []*instancetype.InstanceType{
			test.InstanceType(test.InstanceTypeOptions{}),
		}}
		prices = &staticPrices{prices: map[string]map[string]float64{
			"m3.medium": {"us-east-1a": 0.30, "us-east-1b": 0.20},
		}}
	})

	It("should place a spot request end to end", func() {
		newProvisioner().Tick(ctx)

		Expect(fakeEC2.RequestSpotInstancesBehavior.Calls()).To(Equal(1))
		input := fakeEC2.RequestSpotInstancesBehavior.CalledWith()[0]
		Expect(aws.StringValue(input.SpotPrice)).To(Equal("0.5"))
		Expect(aws.StringValue(input.LaunchSpecification.SubnetId)).To(Equal("subnet-b"))
		Expect(aws.StringValue(input.LaunchSpecification.InstanceType)).To(Equal("m3.medium"))
		Expect(fakeEC2.CreateTagsBehavior.Calls()).To(Equal(1))

		Expect(fakeLedger.Entries).To(HaveLen(1))
		entry := fakeLedger.Entries[0]
		Expect(entry.Tenant).To(Equal(tnt.ID))
		Expect(entry.JobRunnerID).To(Equal(job.ID))
		Expect(entry.RequestType).To(Equal(ledger.RequestTypeSpot))
		Expect(entry.Price).To(Equal(0.5))
		Expect(entry.Subnet).To(Equal(int64(102)))
	})

	It("should make no cloud calls when no jobs are idle", func() {
		queue.jobs = nil

		newProvisioner().Tick(ctx)

		Expect(catalog.calls).To(Equal(0))
		Expect(prices.calls).To(Equal(0))
		Expect(fakeEC2.RequestSpotInstancesBehavior.Calls()).To(Equal(0))
		Expect(fakeEC2.RunInstancesBehavior.Calls()).To(Equal(0))
		Expect(fakeEC2.DescribeSpotPriceHistoryBehavior.Calls()).To(Equal(0))
		Expect(fakeLedger.Entries).To(BeEmpty())
	})

	It("should make no cloud calls when recent requests cover every idle job", func() {
		fakeLedger.Add(&fake.LedgerEntry{
			Entry:       ledger.Entry{Tenant: tnt.ID, JobRunnerID: job.ID, RequestType: ledger.RequestTypeSpot},
			RequestTime: time.Now().Add(-10 * time.Second),
		})

		newProvisioner().Tick(ctx)

		Expect(catalog.calls).To(Equal(0))
		Expect(prices.calls).To(Equal(0))
		Expect(fakeEC2.RequestSpotInstancesBehavior.Calls()).To(Equal(0))
		Expect(fakeLedger.Entries).To(HaveLen(1))
	})

	It("should keep provisioning when the price refresh fails", func() {
		tnt = test.Tenant(test.TenantOptions{MaxBidPrice: 2.0})
		loader.tenants = []*tenant.Tenant{tnt}
		prices.err = errors.New("throttled")

		newProvisioner().Tick(ctx)

		// with no spot offers on-demand is cheapest
		Expect(fakeEC2.RunInstancesBehavior.Calls()).To(Equal(1))
		Expect(fakeLedger.Entries).To(HaveLen(1))
		Expect(fakeLedger.Entries[0].RequestType).To(Equal(ledger.RequestTypeOnDemand))
		Expect(fakeLedger.Entries[0].Price).To(Equal(1.0))
		Expect(fakeLedger.Entries[0].Subnet).To(Equal(int64(100)))
	})

	It("should place requests for each tenant independently", func() {
		other := test.Tenant(test.TenantOptions{ID: 2, Name: "tenant-b", CondorAddress: "submit-b.example.org"})
		otherJob := test.Job(test.JobOptions{ID: 2, TenantAddress: "submit-b.example.org"})
		loader.tenants = []*tenant.Tenant{tnt, other}
		queue.jobs = []*scheduler.Job{job, otherJob}

		newProvisioner().Tick(ctx)

		Expect(fakeEC2.RequestSpotInstancesBehavior.Calls()).To(Equal(2))
		Expect(fakeLedger.Entries).To(HaveLen(2))
		Expect(fakeLedger.Entries[0].Tenant).To(Equal(int64(1)))
		Expect(fakeLedger.Entries[1].Tenant).To(Equal(int64(2)))
	})
})
