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

package subnet

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"
	"knative.dev/pkg/logging"
)

const mappingsCacheKey = "subnet-mappings"

// Mapping is one subnet_mapping row: the placement target for a zone and the
// ledger id requests in that zone are recorded against.
type Mapping struct {
	ID       int64  `db:"id"`
	Zone     string `db:"zone"`
	SubnetID string `db:"subnet_id"`
}

// Provider loads the zone to subnet mapping table. The mapping changes only
// when an operator re-plumbs the VPC, so rows are cached between ticks.
type Provider struct {
	sync.Mutex
	db    *sqlx.DB
	cache *cache.Cache
}

func NewProvider(db *sqlx.DB, cache *cache.Cache) *Provider {
	return &Provider{db: db, cache: cache}
}

// List returns every subnet mapping, from cache when fresh.
func (p *Provider) List(ctx context.Context) ([]Mapping, error) {
	p.Lock()
	defer p.Unlock()
	if mappings, ok := p.cache.Get(mappingsCacheKey); ok {
		return mappings.([]Mapping), nil
	}
	var mappings []Mapping
	if err := p.db.SelectContext(ctx, &mappings,
		`SELECT id, zone, subnet_id FROM subnet_mapping ORDER BY id`); err != nil {
		return nil, fmt.Errorf("listing subnet mappings, %w", err)
	}
	p.cache.SetDefault(mappingsCacheKey, mappings)
	logging.FromContext(ctx).
		With("subnets", lo.Map(mappings, func(m Mapping, _ int) string {
			return fmt.Sprintf("%s (%s)", m.SubnetID, m.Zone)
		})).
		Debugf("discovered subnets")
	return mappings, nil
}

// ZonalSubnets returns the mapping keyed by zone.
func (p *Provider) ZonalSubnets(ctx context.Context) (map[string]Mapping, error) {
	mappings, err := p.List(ctx)
	if err != nil {
		return nil, err
	}
	return lo.KeyBy(mappings, func(m Mapping) string { return m.Zone }), nil
}
