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
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
)

// NewEC2Client builds an EC2 client scoped to the tenant's credentials.
// Cloud calls are always made on behalf of a tenant, so the client is derived
// from the tenant row rather than the ambient environment.
func NewEC2Client(t *Tenant, region string) ec2iface.EC2API {
	sess := session.Must(session.NewSession(
		aws.NewConfig().
			WithRegion(region).
			WithCredentials(credentials.NewStaticCredentials(t.AccessKey, t.SecretKey, "")),
	))
	return ec2.New(sess)
}
