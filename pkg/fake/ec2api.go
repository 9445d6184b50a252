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
	"fmt"

	"github.com/Pallinder/go-randomdata"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
)

// EC2Behavior must be reset between tests otherwise tests will pollute each
// other.
type EC2Behavior struct {
	DescribeSpotPriceHistoryBehavior MockedFunction[ec2.DescribeSpotPriceHistoryInput, ec2.DescribeSpotPriceHistoryOutput]
	RunInstancesBehavior             MockedFunction[ec2.RunInstancesInput, ec2.Reservation]
	RequestSpotInstancesBehavior     MockedFunction[ec2.RequestSpotInstancesInput, ec2.RequestSpotInstancesOutput]
	CreateTagsBehavior               MockedFunction[ec2.CreateTagsInput, ec2.CreateTagsOutput]
}

// EC2API is an in-memory EC2 double covering the calls the provisioner makes.
type EC2API struct {
	ec2iface.EC2API
	EC2Behavior
}

// Reset must be called between tests otherwise tests will pollute each other.
func (e *EC2API) Reset() {
	e.DescribeSpotPriceHistoryBehavior.Reset()
	e.RunInstancesBehavior.Reset()
	e.RequestSpotInstancesBehavior.Reset()
	e.CreateTagsBehavior.Reset()
}

func (e *EC2API) DescribeSpotPriceHistoryPagesWithContext(_ context.Context, input *ec2.DescribeSpotPriceHistoryInput, fn func(*ec2.DescribeSpotPriceHistoryOutput, bool) bool, _ ...request.Option) error {
	out, err := e.DescribeSpotPriceHistoryBehavior.Invoke(input)
	if err != nil {
		return err
	}
	fn(out, true)
	return nil
}

func (e *EC2API) RunInstancesWithContext(_ context.Context, input *ec2.RunInstancesInput, _ ...request.Option) (*ec2.Reservation, error) {
	out, err := e.RunInstancesBehavior.Invoke(input)
	if err != nil {
		return nil, err
	}
	if len(out.Instances) == 0 {
		count := int(aws.Int64Value(input.MaxCount))
		for i := 0; i < count; i++ {
			out.Instances = append(out.Instances, &ec2.Instance{
				InstanceId:     aws.String(fmt.Sprintf("i-%s", randomdata.Alphanumeric(17))),
				InstanceType:   input.InstanceType,
				ImageId:        input.ImageId,
				PrivateDnsName: aws.String(randomdata.IpV4Address()),
			})
		}
	}
	return out, nil
}

func (e *EC2API) RequestSpotInstancesWithContext(_ context.Context, input *ec2.RequestSpotInstancesInput, _ ...request.Option) (*ec2.RequestSpotInstancesOutput, error) {
	out, err := e.RequestSpotInstancesBehavior.Invoke(input)
	if err != nil {
		return nil, err
	}
	if len(out.SpotInstanceRequests) == 0 {
		count := int(aws.Int64Value(input.InstanceCount))
		for i := 0; i < count; i++ {
			out.SpotInstanceRequests = append(out.SpotInstanceRequests, &ec2.SpotInstanceRequest{
				SpotInstanceRequestId: aws.String(fmt.Sprintf("sir-%s", randomdata.Alphanumeric(8))),
				SpotPrice:             input.SpotPrice,
			})
		}
	}
	return out, nil
}

func (e *EC2API) CreateTagsWithContext(_ context.Context, input *ec2.CreateTagsInput, _ ...request.Option) (*ec2.CreateTagsOutput, error) {
	return e.CreateTagsBehavior.Invoke(input)
}
