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

package tenant

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ryanchard/cloud-provisioner/pkg/providers/subnet"
	"github.com/ryanchard/cloud-provisioner/pkg/scheduler"
)

// Tenant is a principal with cloud credentials and provisioning policy.
// Tenants are reloaded from the database every tick; Jobs and IdleJobs are
// working sets that only exist within a tick.
type Tenant struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`

	AccessKey string `db:"access_key"`
	SecretKey string `db:"secret_key"`

	VPC           string `db:"vpc"`
	SecurityGroup string `db:"security_group"`
	KeyPair       string `db:"key_pair"`
	PublicIP      string `db:"public_ip"`
	Domain        string `db:"domain"`

	// Subnet is the default subnet for on-demand launches, SubnetID its
	// subnet_mapping row id recorded in the ledger.
	Subnet   string `db:"subnet"`
	SubnetID int64  `db:"subnet_id"`

	MaxBidPrice float64 `db:"max_bid_price"`
	BidPercent  float64 `db:"bid_percent"`
	Timeout     int64   `db:"timeout"`
	IdleTime    int64   `db:"idle_time"`
	RequestRate int64   `db:"request_rate"`

	CondorAddress string `db:"condor_address"`

	// Subnets maps zone to the cloud subnet id for spot placement;
	// SubnetIDs maps zone to the subnet_mapping row id for the ledger.
	Subnets   map[string]string `db:"-"`
	SubnetIDs map[string]int64  `db:"-"`

	Jobs     []*scheduler.Job `db:"-"`
	IdleJobs []*scheduler.Job `db:"-"`
}

// RemoveIdleJob drops a job from the idle working set.
func (t *Tenant) RemoveIdleJob(job *scheduler.Job) {
	for i, j := range t.IdleJobs {
		if j == job {
			t.IdleJobs = append(t.IdleJobs[:i], t.IdleJobs[i+1:]...)
			return
		}
	}
}

// Loader reads tenants from the database and attaches the zonal subnet
// mappings to each.
type Loader struct {
	db      *sqlx.DB
	subnets *subnet.Provider
}

func NewLoader(db *sqlx.DB, subnets *subnet.Provider) *Loader {
	return &Loader{db: db, subnets: subnets}
}

// Load returns all tenants in table order with fresh, empty working sets.
func (l *Loader) Load(ctx context.Context) ([]*Tenant, error) {
	var tenants []*Tenant
	if err := l.db.SelectContext(ctx, &tenants,
		`SELECT id, name, access_key, secret_key, vpc, security_group,
		        key_pair, public_ip, domain, subnet, subnet_id,
		        max_bid_price, bid_percent, timeout, idle_time,
		        request_rate, condor_address
		   FROM tenant
		  ORDER BY id`); err != nil {
		return nil, fmt.Errorf("loading tenants, %w", err)
	}
	mappings, err := l.subnets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading subnet mappings, %w", err)
	}
	for _, t := range tenants {
		t.Subnets = map[string]string{}
		t.SubnetIDs = map[string]int64{}
		for _, m := range mappings {
			t.Subnets[m.Zone] = m.SubnetID
			t.SubnetIDs[m.Zone] = m.ID
		}
	}
	return tenants, nil
}
