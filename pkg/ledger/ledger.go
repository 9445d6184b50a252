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

// Package ledger persists every cloud request the provisioner places. The
// instance_request table is the single source of truth for outstanding
// requests; a row joined to the externally written instance table marks a
// fulfilled request.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	RequestTypeSpot     = "spot"
	RequestTypeOnDemand = "ondemand"
)

// Entry is one instance_request row. request_time defaults to the server
// clock on insert.
type Entry struct {
	Tenant       int64   `db:"tenant"`
	InstanceType int64   `db:"instance_type"`
	Price        float64 `db:"price"`
	JobRunnerID  int64   `db:"job_runner_id"`
	RequestType  string  `db:"request_type"`
	RequestID    string  `db:"request_id"`
	Subnet       int64   `db:"subnet"`
}

// OpenRequest identifies an outstanding request by its instance type name and
// zone, the pair the selector deduplicates on.
type OpenRequest struct {
	InstanceType string `db:"type"`
	Zone         string `db:"zone"`
}

// Ledger is the Postgres-backed request ledger.
type Ledger struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

// Insert durably records a placed cloud request. The caller must not issue
// further requests for the job until the insert has returned.
func (l *Ledger) Insert(ctx context.Context, e Entry) error {
	if _, err := l.db.NamedExecContext(ctx,
		`INSERT INTO instance_request
		        (tenant, instance_type, price, job_runner_id, request_type, request_id, subnet)
		 VALUES (:tenant, :instance_type, :price, :job_runner_id, :request_type, :request_id, :subnet)`,
		e); err != nil {
		return fmt.Errorf("inserting request ledger entry, %w", err)
	}
	return nil
}

// FulfilledCPUs sums the cpus of every request for the job that has a linked
// instance row.
func (l *Ledger) FulfilledCPUs(ctx context.Context, tenantID, jobID int64) (int64, error) {
	var cpus int64
	if err := l.db.GetContext(ctx, &cpus,
		`SELECT COALESCE(SUM(instance_type.cpus), 0)
		   FROM instance_request
		   JOIN instance_type ON instance_type.id = instance_request.instance_type
		   JOIN instance ON instance.request_id = instance_request.id
		  WHERE instance_request.job_runner_id = $1
		    AND instance_request.tenant = $2`,
		jobID, tenantID); err != nil {
		return 0, fmt.Errorf("summing fulfilled cpus, %w", err)
	}
	return cpus, nil
}

// HasOnDemandFulfillment reports whether any on-demand request for the job
// has produced an instance.
func (l *Ledger) HasOnDemandFulfillment(ctx context.Context, tenantID, jobID int64) (bool, error) {
	var count int
	if err := l.db.GetContext(ctx, &count,
		`SELECT COUNT(*)
		   FROM instance_request
		   JOIN instance ON instance.request_id = instance_request.id
		  WHERE instance_request.job_runner_id = $1
		    AND instance_request.tenant = $2
		    AND instance_request.request_type = $3`,
		jobID, tenantID, RequestTypeOnDemand); err != nil {
		return false, fmt.Errorf("checking ondemand fulfillment, %w", err)
	}
	return count > 0, nil
}

// CountRecent counts ledger entries for the job created within the window.
func (l *Ledger) CountRecent(ctx context.Context, tenantID, jobID int64, window time.Duration) (int, error) {
	var count int
	if err := l.db.GetContext(ctx, &count,
		`SELECT COUNT(*)
		   FROM instance_request
		  WHERE job_runner_id = $1
		    AND tenant = $2
		    AND request_time >= NOW() - $3 * INTERVAL '1 second'`,
		jobID, tenantID, int64(window.Seconds())); err != nil {
		return 0, fmt.Errorf("counting recent requests, %w", err)
	}
	return count, nil
}

// Count counts every ledger entry ever made for the job.
func (l *Ledger) Count(ctx context.Context, tenantID, jobID int64) (int, error) {
	var count int
	if err := l.db.GetContext(ctx, &count,
		`SELECT COUNT(*)
		   FROM instance_request
		  WHERE job_runner_id = $1
		    AND tenant = $2`,
		jobID, tenantID); err != nil {
		return 0, fmt.Errorf("counting requests, %w", err)
	}
	return count, nil
}

// OpenRequests returns the (instance type, zone) pairs already requested for
// the job.
func (l *Ledger) OpenRequests(ctx context.Context, tenantID, jobID int64) ([]OpenRequest, error) {
	var open []OpenRequest
	if err := l.db.SelectContext(ctx, &open,
		`SELECT instance_type.type, subnet_mapping.zone
		   FROM instance_request
		   JOIN instance_type ON instance_type.id = instance_request.instance_type
		   JOIN subnet_mapping ON subnet_mapping.id = instance_request.subnet
		  WHERE instance_request.job_runner_id = $1
		    AND instance_request.tenant = $2`,
		jobID, tenantID); err != nil {
		return nil, fmt.Errorf("listing open requests, %w", err)
	}
	return open, nil
}
