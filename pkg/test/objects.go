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

// Package test provides builders for the domain objects tests exercise.
// Builders fill unset fields with defaults so tests only state what they
// care about.
package test

import (
	"time"

	"github.com/ryanchard/cloud-provisioner/pkg/providers/instancetype"
	"github.com/ryanchard/cloud-provisioner/pkg/scheduler"
	"github.com/ryanchard/cloud-provisioner/pkg/tenant"
)

// TenantOptions customizes a test tenant. Zero values fall back to defaults.
type TenantOptions struct {
	ID            int64
	Name          string
	MaxBidPrice   float64
	BidPercent    float64
	Timeout       int64
	IdleTime      int64
	RequestRate   int64
	CondorAddress string
	Subnet        string
	SubnetID      int64
	Subnets       map[string]string
	SubnetIDs     map[string]int64
}

func Tenant(overrides TenantOptions) *tenant.Tenant {
	t := &tenant.Tenant{
		ID:            overrides.ID,
		Name:          overrides.Name,
		AccessKey:     "AKIATEST",
		SecretKey:     "test-secret",
		VPC:           "vpc-test",
		SecurityGroup: "sg-test",
		KeyPair:       "kp-test",
		PublicIP:      "10.0.0.1",
		Domain:        "example.org",
		Subnet:        overrides.Subnet,
		SubnetID:      overrides.SubnetID,
		MaxBidPrice:   overrides.MaxBidPrice,
		BidPercent:    overrides.BidPercent,
		Timeout:       overrides.Timeout,
		IdleTime:      overrides.IdleTime,
		RequestRate:   overrides.RequestRate,
		CondorAddress: overrides.CondorAddress,
		Subnets:       overrides.Subnets,
		SubnetIDs:     overrides.SubnetIDs,
	}
	if t.ID == 0 {
		t.ID = 1
	}
	if t.Name == "" {
		t.Name = "tenant-a"
	}
	if t.MaxBidPrice == 0 {
		t.MaxBidPrice = 0.5
	}
	if t.BidPercent == 0 {
		t.BidPercent = 50
	}
	if t.RequestRate == 0 {
		t.RequestRate = 60
	}
	if t.CondorAddress == "" {
		t.CondorAddress = "submit.example.org"
	}
	if t.Subnet == "" {
		t.Subnet = "subnet-default"
	}
	if t.SubnetID == 0 {
		t.SubnetID = 100
	}
	if t.Subnets == nil {
		t.Subnets = map[string]string{
			"us-east-1a": "subnet-a",
			"us-east-1b": "subnet-b",
		}
	}
	if t.SubnetIDs == nil {
		t.SubnetIDs = map[string]int64{
			"us-east-1a": 101,
			"us-east-1b": 102,
		}
	}
	return t
}

// JobOptions customizes a test job. Zero values fall back to defaults.
type JobOptions struct {
	TenantAddress string
	ID            int64
	Status        int
	ReqTime       int64
	ReqCPUs       int64
	ReqMem        float64
	ReqDisk       float64
	Description   map[string]any
}

func Job(overrides JobOptions) *scheduler.Job {
	if overrides.TenantAddress == "" {
		overrides.TenantAddress = "submit.example.org"
	}
	if overrides.ID == 0 {
		overrides.ID = 1
	}
	if overrides.Status == 0 {
		overrides.Status = scheduler.JobStatusIdle
	}
	if overrides.ReqTime == 0 {
		overrides.ReqTime = time.Now().Unix()
	}
	if overrides.ReqCPUs == 0 {
		overrides.ReqCPUs = 2
	}
	if overrides.ReqMem == 0 {
		overrides.ReqMem = 4
	}
	if overrides.ReqDisk == 0 {
		overrides.ReqDisk = 10
	}
	if overrides.Description == nil {
		overrides.Description = map[string]any{}
	}
	return scheduler.NewJob(overrides.TenantAddress, overrides.ID, overrides.Status,
		overrides.ReqTime, overrides.ReqCPUs, overrides.ReqMem, overrides.ReqDisk,
		overrides.Description)
}

// InstanceTypeOptions customizes a catalog row. Zero values fall back to
// defaults.
type InstanceTypeOptions struct {
	ID            int64
	Type          string
	OnDemandPrice float64
	CPUs          int64
	Memory        float64
	Disk          float64
	AMI           string
	Spot          map[string]float64
}

func InstanceType(overrides InstanceTypeOptions) *instancetype.InstanceType {
	it := &instancetype.InstanceType{
		ID:            overrides.ID,
		Type:          overrides.Type,
		OnDemandPrice: overrides.OnDemandPrice,
		CPUs:          overrides.CPUs,
		Memory:        overrides.Memory,
		Disk:          overrides.Disk,
		AMI:           overrides.AMI,
		Spot:          overrides.Spot,
	}
	if it.ID == 0 {
		it.ID = 1
	}
	if it.Type == "" {
		it.Type = "m3.medium"
	}
	if it.OnDemandPrice == 0 {
		it.OnDemandPrice = 1.0
	}
	if it.CPUs == 0 {
		it.CPUs = 4
	}
	if it.Memory == 0 {
		it.Memory = 8
	}
	if it.Disk == 0 {
		it.Disk = 20
	}
	if it.AMI == "" {
		it.AMI = "ami-12345678"
	}
	if it.Spot == nil {
		it.Spot = map[string]float64{}
	}
	return it
}
