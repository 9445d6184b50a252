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

package scheduler

import (
	"strings"

	"github.com/ryanchard/cloud-provisioner/pkg/providers/instancetype"
)

// JobStatusIdle is the scheduler status code for a job waiting in the queue.
const JobStatusIdle = 1

// Job is a single work unit observed on the global queue. Instances are
// rebuilt from the queue probe every tick and discarded at tick end; only the
// request ledger outlives them.
type Job struct {
	TenantAddress string
	ID            int64
	Status        int
	ReqTime       int64
	ReqCPUs       int64
	ReqMem        float64
	ReqDisk       float64
	Description   map[string]any

	// OnDemand is seeded from the job description and may be escalated by
	// the selector within a tick.
	OnDemand bool
	Tool     string
	Version  string

	Fulfilled bool
	Launch    *instancetype.Request
}

// NewJob constructs a Job and lifts the well-known description keys into
// typed fields. Unrecognized keys stay in Description.
func NewJob(tenantAddress string, id int64, status int, reqTime, reqCPUs int64, reqMem, reqDisk float64, description map[string]any) *Job {
	j := &Job{
		TenantAddress: tenantAddress,
		ID:            id,
		Status:        status,
		ReqTime:       reqTime,
		ReqCPUs:       reqCPUs,
		ReqMem:        reqMem,
		ReqDisk:       reqDisk,
		Description:   description,
	}
	if od, ok := description["ondemand"].(bool); ok {
		j.OnDemand = od
	}
	if tool, ok := description["tool"].(string); ok {
		j.Tool = tool
	}
	if version, ok := description["version"].(string); ok {
		j.Version = version
	}
	return j
}

// ParseDescription converts a comma-separated k=v job description into a map.
// The string "true" maps to boolean true regardless of case; every other
// value stays a string.
func ParseDescription(desc string) map[string]any {
	desc = strings.Trim(desc, `"`)
	description := map[string]any{}
	for _, item := range strings.Split(desc, ",") {
		key, value, found := strings.Cut(item, "=")
		if !found {
			continue
		}
		if strings.EqualFold(value, "true") {
			description[key] = true
			continue
		}
		description[key] = value
	}
	return description
}
