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

// Package condor probes an HTCondor global queue with condor_q and maps its
// jobs onto tenants by their condor address.
package condor

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"knative.dev/pkg/logging"

	"github.com/ryanchard/cloud-provisioner/pkg/scheduler"
	"github.com/ryanchard/cloud-provisioner/pkg/tenant"
)

// emptyQueueSentinel is printed by condor_q when no schedd has work queued.
const emptyQueueSentinel = "All queues are empty"

var condorQArgs = []string{
	"-global",
	"-format", "%s:", "GlobalJobId",
	"-format", "%s:", "ClusterId",
	"-format", "%s:", "JobStatus",
	"-format", "%s:", "QDate",
	"-format", "%s:", "RequestCpus",
	"-format", "%s:", "RequestMemory",
	"-format", "%s:", "RequestDisk",
	"-format", "%s:", "JobDescription",
	"-format", "%s\n", "ExitStatus",
}

// Scheduler reads the global condor queue by invoking condor_q.
type Scheduler struct {
	// queueOutput is swapped out in tests to avoid the external binary.
	queueOutput func(ctx context.Context) ([]byte, error)
	clock       func() time.Time
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		queueOutput: func(ctx context.Context) ([]byte, error) {
			return exec.CommandContext(ctx, "condor_q", condorQArgs...).Output()
		},
		clock: time.Now,
	}
}

// GetGlobalQueue polls condor_q -global and returns the queued jobs.
// Unparseable lines are logged and skipped; the empty-queue sentinel
// terminates parsing.
func (s *Scheduler) GetGlobalQueue(ctx context.Context) ([]*scheduler.Job, error) {
	output, err := s.queueOutput(ctx)
	if err != nil {
		return nil, fmt.Errorf("invoking condor_q, %w", err)
	}

	var jobs []*scheduler.Job
	for _, line := range strings.Split(string(output), "\n") {
		if line == "" {
			continue
		}
		if strings.Contains(line, emptyQueueSentinel) {
			break
		}
		job, err := parseQueueLine(line)
		if err != nil {
			logging.FromContext(ctx).With("line", line).Errorf("skipping queue entry, %s", err)
			continue
		}
		jobs = append(jobs, job)
	}
	logging.FromContext(ctx).Debugf("found %d jobs on the global queue", len(jobs))
	return jobs, nil
}

// ProcessGlobalQueue attaches each job to its owning tenant. A job also
// enters the tenant's idle set when it is in the idle state and has been
// queued for at least the tenant's idle_time.
func (s *Scheduler) ProcessGlobalQueue(ctx context.Context, jobs []*scheduler.Job, tenants []*tenant.Tenant) {
	now := s.clock().Unix()
	for _, t := range tenants {
		idleCutoff := now - t.IdleTime
		for _, job := range jobs {
			if job.TenantAddress != t.CondorAddress {
				continue
			}
			t.Jobs = append(t.Jobs, job)
			if job.Status == scheduler.JobStatusIdle && job.ReqTime <= idleCutoff {
				t.IdleJobs = append(t.IdleJobs, job)
			}
		}
	}
}

// parseQueueLine splits one colon-separated condor_q line into a Job:
// GlobalJobId:ClusterId:JobStatus:QDate:RequestCpus:RequestMemory:RequestDisk:JobDescription:ExitStatus
func parseQueueLine(line string) (*scheduler.Job, error) {
	fields := strings.Split(line, ":")
	if len(fields) < 8 {
		return nil, fmt.Errorf("expected at least 8 fields, got %d", len(fields))
	}

	// The tenant's address is the schedd name in front of the global id.
	tenantAddress := ""
	if before, _, found := strings.Cut(fields[0], "#"); found {
		tenantAddress = before
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing cluster id %q, %w", fields[1], err)
	}
	status, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, fmt.Errorf("parsing job status %q, %w", fields[2], err)
	}
	reqTime, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing queue date %q, %w", fields[3], err)
	}
	reqCPUs, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing requested cpus %q, %w", fields[4], err)
	}
	// RequestMemory and RequestDisk are either numbers or condor
	// expressions. Expressions evaluate to "no requirement".
	reqMem := normalizeSize(fields[5])
	reqDisk := normalizeSize(fields[6])

	description := map[string]any{}
	if strings.Contains(fields[7], "=") {
		description = scheduler.ParseDescription(fields[7])
	}
	return scheduler.NewJob(tenantAddress, id, status, reqTime, reqCPUs, reqMem, reqDisk, description), nil
}

// normalizeSize reads a condor size attribute as GB. Values above 1024 are
// assumed to be MB, matching the catalog's units.
func normalizeSize(raw string) float64 {
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	if val > 1024 {
		return val / 1024
	}
	return val
}
