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

package instancetype

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// InstanceType is one row of the instance catalog, plus the per-tick spot
// price snapshot filled in by the pricing provider.
type InstanceType struct {
	ID            int64   `db:"id"`
	Type          string  `db:"type"`
	OnDemandPrice float64 `db:"ondemand_price"`
	CPUs          int64   `db:"cpus"`
	Memory        float64 `db:"memory"`
	Disk          float64 `db:"disk"`
	AMI           string  `db:"ami"`

	// Spot maps availability zone to the current spot price. Refreshed
	// each tick; empty until the pricing provider has run.
	Spot map[string]float64 `db:"-"`
}

// Provider loads the instance catalog from the database.
type Provider struct {
	db *sqlx.DB
}

func NewProvider(db *sqlx.DB) *Provider {
	return &Provider{db: db}
}

// List returns the available catalog rows in id order with empty spot maps.
func (p *Provider) List(ctx context.Context) ([]*InstanceType, error) {
	var instanceTypes []*InstanceType
	if err := p.db.SelectContext(ctx, &instanceTypes,
		`SELECT id, type, ondemand_price, cpus, memory, disk, ami
		   FROM instance_type
		  WHERE available = true
		  ORDER BY id`); err != nil {
		return nil, fmt.Errorf("listing instance types, %w", err)
	}
	for _, it := range instanceTypes {
		it.Spot = map[string]float64{}
	}
	return instanceTypes, nil
}
