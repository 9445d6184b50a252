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

	"github.com/ryanchard/cloud-provisioner/pkg/ledger"
	"github.com/ryanchard/cloud-provisioner/pkg/providers/instancetype"
	"github.com/ryanchard/cloud-provisioner/pkg/scheduler"
	"github.com/ryanchard/cloud-provisioner/pkg/tenant"
)

// Ledger is the request-ledger view the control loop depends on. The
// Postgres implementation lives in pkg/ledger; tests swap in an in-memory
// fake.
type Ledger interface {
	FulfilledCPUs(ctx context.Context, tenantID, jobID int64) (int64, error)
	HasOnDemandFulfillment(ctx context.Context, tenantID, jobID int64) (bool, error)
	CountRecent(ctx context.Context, tenantID, jobID int64, window time.Duration) (int, error)
	Count(ctx context.Context, tenantID, jobID int64) (int, error)
	OpenRequests(ctx context.Context, tenantID, jobID int64) ([]ledger.OpenRequest, error)
}

// Scheduler enumerates the external job queue and attaches jobs to their
// owning tenants.
type Scheduler interface {
	GetGlobalQueue(ctx context.Context) ([]*scheduler.Job, error)
	ProcessGlobalQueue(ctx context.Context, jobs []*scheduler.Job, tenants []*tenant.Tenant)
}

// TenantLoader returns the tenants to provision for, in a stable order.
type TenantLoader interface {
	Load(ctx context.Context) ([]*tenant.Tenant, error)
}

// Catalog returns the instance-type catalog for the tick.
type Catalog interface {
	List(ctx context.Context) ([]*instancetype.InstanceType, error)
}

// PriceView refreshes the spot price snapshot on the catalog under the price
// tenant's credentials.
type PriceView interface {
	UpdateSpotPrices(ctx context.Context, priceTenant *tenant.Tenant, instanceTypes []*instancetype.InstanceType) error
}

// Requester places the requests selected for a tenant's jobs.
type Requester interface {
	RequestResources(ctx context.Context, t *tenant.Tenant)
}
