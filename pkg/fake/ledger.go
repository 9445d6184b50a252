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

package fake

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/ryanchard/cloud-provisioner/pkg/ledger"
)

// LedgerEntry is a recorded request plus the bookkeeping the real database
// derives from joins: the request timestamp, the zone of its subnet, and
// whether an instance row fulfilled it.
type LedgerEntry struct {
	ledger.Entry
	RequestTime time.Time
	// InstanceTypeName and Zone mirror what the real ledger resolves
	// through the instance_type and subnet_mapping joins.
	InstanceTypeName string
	Zone             string
	Fulfilled        bool
	CPUs             int64
}

// Ledger is an in-memory stand-in for the Postgres request ledger.
type Ledger struct {
	mu      sync.Mutex
	Entries []*LedgerEntry
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Reset must be called between tests otherwise tests will pollute each other.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = nil
}

// Add seeds an entry directly, bypassing Insert.
func (l *Ledger) Add(e *LedgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.RequestTime.IsZero() {
		e.RequestTime = time.Now()
	}
	l.Entries = append(l.Entries, e)
}

func (l *Ledger) Insert(_ context.Context, e ledger.Entry) error {
	l.Add(&LedgerEntry{Entry: e})
	return nil
}

func (l *Ledger) FulfilledCPUs(_ context.Context, tenantID, jobID int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return lo.SumBy(l.forJob(tenantID, jobID), func(e *LedgerEntry) int64 {
		return lo.Ternary(e.Fulfilled, e.CPUs, 0)
	}), nil
}

func (l *Ledger) HasOnDemandFulfillment(_ context.Context, tenantID, jobID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return lo.ContainsBy(l.forJob(tenantID, jobID), func(e *LedgerEntry) bool {
		return e.Fulfilled && e.RequestType == ledger.RequestTypeOnDemand
	}), nil
}

func (l *Ledger) CountRecent(_ context.Context, tenantID, jobID int64, window time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-window)
	return lo.CountBy(l.forJob(tenantID, jobID), func(e *LedgerEntry) bool {
		return !e.RequestTime.Before(cutoff)
	}), nil
}

func (l *Ledger) Count(_ context.Context, tenantID, jobID int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.forJob(tenantID, jobID)), nil
}

func (l *Ledger) OpenRequests(_ context.Context, tenantID, jobID int64) ([]ledger.OpenRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return lo.Map(l.forJob(tenantID, jobID), func(e *LedgerEntry, _ int) ledger.OpenRequest {
		return ledger.OpenRequest{InstanceType: e.InstanceTypeName, Zone: e.Zone}
	}), nil
}

func (l *Ledger) forJob(tenantID, jobID int64) []*LedgerEntry {
	return lo.Filter(l.Entries, func(e *LedgerEntry, _ int) bool {
		return e.Tenant == tenantID && e.JobRunnerID == jobID
	})
}
