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

package instance

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/samber/lo"
	"knative.dev/pkg/logging"

	awserrors "github.com/ryanchard/cloud-provisioner/pkg/errors"
	"github.com/ryanchard/cloud-provisioner/pkg/ledger"
	"github.com/ryanchard/cloud-provisioner/pkg/providers/instancetype"
	"github.com/ryanchard/cloud-provisioner/pkg/providers/launchtemplate"
	"github.com/ryanchard/cloud-provisioner/pkg/scheduler"
	"github.com/ryanchard/cloud-provisioner/pkg/tenant"
)

const (
	tagAttempts = 3
	tagDelay    = 2 * time.Second

	rootVolumeSizeGB = 10
)

// LedgerWriter records placed cloud requests. Each insert must be committed
// before the next request is issued so a crash leaves the ledger consistent
// with the cloud.
type LedgerWriter interface {
	Insert(ctx context.Context, e ledger.Entry) error
}

// Provider issues the cloud requests chosen by the selector and appends each
// placed request to the ledger.
type Provider struct {
	ledger   LedgerWriter
	userData *launchtemplate.Provider
	ec2For   func(*tenant.Tenant) ec2iface.EC2API
}

func NewProvider(l LedgerWriter, userData *launchtemplate.Provider, ec2For func(*tenant.Tenant) ec2iface.EC2API) *Provider {
	return &Provider{
		ledger:   l,
		userData: userData,
		ec2For:   ec2For,
	}
}

// RequestResources places the chosen request for every unfulfilled idle job
// of the tenant. A cloud failure skips the affected job for this tick.
func (p *Provider) RequestResources(ctx context.Context, t *tenant.Tenant) {
	ec2api := p.ec2For(t)
	var requestedInstances, requestedCPUs int64
	for _, job := range t.IdleJobs {
		if job.Fulfilled || job.Launch == nil {
			continue
		}
		var err error
		if job.Launch.OnDemand {
			err = p.launchOnDemand(ctx, ec2api, t, job)
		} else {
			err = p.launchSpot(ctx, ec2api, t, job)
		}
		if err != nil {
			logging.FromContext(ctx).With("job", job.ID, "instance-type", job.Launch.InstanceType).
				Errorf("requesting resources, %s", err)
			continue
		}
		requestedInstances += job.Launch.Count
		requestedCPUs += job.ReqCPUs
	}
	logging.FromContext(ctx).With(
		"tenant", t.Name,
		"requested-instances", requestedInstances,
		"requested-cpus", requestedCPUs).Debugf("completed requesting pass")
}

func (p *Provider) launchOnDemand(ctx context.Context, ec2api ec2iface.EC2API, t *tenant.Tenant, job *scheduler.Job) error {
	req := job.Launch
	userData, err := p.renderUserData(ctx, t, req)
	if err != nil {
		return err
	}
	out, err := ec2api.RunInstancesWithContext(ctx, &ec2.RunInstancesInput{
		MinCount:            aws.Int64(req.Count),
		MaxCount:            aws.Int64(req.Count),
		ImageId:             aws.String(req.AMI),
		InstanceType:        aws.String(req.InstanceType),
		KeyName:             aws.String(t.KeyPair),
		SecurityGroupIds:    aws.StringSlice([]string{t.SecurityGroup}),
		SubnetId:            aws.String(t.Subnet),
		UserData:            aws.String(userData),
		BlockDeviceMappings: blockDeviceMappings(),
	})
	if err != nil {
		return fmt.Errorf("running instances, %w", err)
	}
	for _, instance := range out.Instances {
		id := aws.StringValue(instance.InstanceId)
		p.tagRequest(ctx, ec2api, id, t.Name)
		if err := p.ledger.Insert(ctx, ledger.Entry{
			Tenant:       t.ID,
			InstanceType: req.Instance.ID,
			Price:        req.ODP,
			JobRunnerID:  job.ID,
			RequestType:  ledger.RequestTypeOnDemand,
			RequestID:    id,
			Subnet:       t.SubnetID,
		}); err != nil {
			// The request exists in the cloud but not in the ledger.
			// Surface it loudly; the cap check bounds the damage.
			logging.FromContext(ctx).With("request-id", id).Errorf("recording ondemand request, %s", err)
		}
	}
	return nil
}

func (p *Provider) launchSpot(ctx context.Context, ec2api ec2iface.EC2API, t *tenant.Tenant, job *scheduler.Job) error {
	req := job.Launch
	userData, err := p.renderUserData(ctx, t, req)
	if err != nil {
		return err
	}
	out, err := ec2api.RequestSpotInstancesWithContext(ctx, &ec2.RequestSpotInstancesInput{
		SpotPrice:     aws.String(strconv.FormatFloat(req.Bid, 'f', -1, 64)),
		InstanceCount: aws.Int64(req.Count),
		LaunchSpecification: &ec2.RequestSpotLaunchSpecification{
			ImageId:             aws.String(req.AMI),
			InstanceType:        aws.String(req.InstanceType),
			KeyName:             aws.String(t.KeyPair),
			SecurityGroupIds:    aws.StringSlice([]string{t.SecurityGroup}),
			SubnetId:            aws.String(t.Subnets[req.Zone]),
			UserData:            aws.String(userData),
			BlockDeviceMappings: blockDeviceMappings(),
		},
	})
	if err != nil {
		return fmt.Errorf("requesting spot instances, %w", err)
	}
	for _, sir := range out.SpotInstanceRequests {
		id := aws.StringValue(sir.SpotInstanceRequestId)
		p.tagRequest(ctx, ec2api, id, t.Name)
		if err := p.ledger.Insert(ctx, ledger.Entry{
			Tenant:       t.ID,
			InstanceType: req.Instance.ID,
			Price:        req.Bid,
			JobRunnerID:  job.ID,
			RequestType:  ledger.RequestTypeSpot,
			RequestID:    id,
			Subnet:       t.SubnetIDs[req.Zone],
		}); err != nil {
			logging.FromContext(ctx).With("request-id", id).Errorf("recording spot request, %s", err)
		}
	}
	return nil
}

func (p *Provider) renderUserData(ctx context.Context, t *tenant.Tenant, req *instancetype.Request) (string, error) {
	rendered, err := p.userData.UserData(ctx, t, req.Instance.CPUs)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString([]byte(rendered)), nil
}

// tagRequest labels a request id with its tenant. Transient cloud errors are
// retried a few times; a final failure is logged and swallowed since the tags
// are informational.
func (p *Provider) tagRequest(ctx context.Context, ec2api ec2iface.EC2API, id, tenantName string) {
	err := retry.Do(func() error {
		_, err := ec2api.CreateTagsWithContext(ctx, &ec2.CreateTagsInput{
			Resources: aws.StringSlice([]string{id}),
			Tags: []*ec2.Tag{
				{Key: aws.String("tenant"), Value: aws.String(tenantName)},
				{Key: aws.String("Name"), Value: aws.String(fmt.Sprintf("worker@%s", tenantName))},
			},
		})
		return err
	},
		retry.Attempts(tagAttempts),
		retry.Delay(tagDelay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(awserrors.IsTransient),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		logging.FromContext(ctx).With("request-id", id).Errorf("tagging request, %s", err)
	}
}

// blockDeviceMappings is the fixed worker disk layout: a 10 GB root volume
// and four instance-store mounts.
func blockDeviceMappings() []*ec2.BlockDeviceMapping {
	mappings := []*ec2.BlockDeviceMapping{{
		DeviceName: aws.String("/dev/sda1"),
		Ebs:        &ec2.EbsBlockDevice{VolumeSize: aws.Int64(rootVolumeSizeGB)},
	}}
	devices := []string{"/dev/sdb", "/dev/sdc", "/dev/sdd", "/dev/sde"}
	return append(mappings, lo.Map(devices, func(device string, i int) *ec2.BlockDeviceMapping {
		return &ec2.BlockDeviceMapping{
			DeviceName:  aws.String(device),
			VirtualName: aws.String(fmt.Sprintf("ephemeral%d", i)),
		}
	})...)
}
