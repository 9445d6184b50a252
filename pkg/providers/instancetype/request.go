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

// Request is a launch candidate for a single job: one instance type in one
// pricing mode, placed in one zone when spot. Candidates only live within a
// tick; the one assigned to a job becomes the cloud request.
type Request struct {
	Instance     *InstanceType
	InstanceType string
	// Zone is empty for on-demand requests.
	Zone  string
	AMI   string
	Count int64
	// Bid is the effective spot bid, set at selection time. Always zero
	// for on-demand.
	Bid      float64
	OnDemand bool
	// ODP carries the on-demand price for comparison against spot offers.
	ODP float64
	// Price is the sort key: ODP when on-demand, the zonal spot price
	// otherwise.
	Price float64
}

// NewOnDemandRequest builds an on-demand candidate for the given type.
func NewOnDemandRequest(it *InstanceType) *Request {
	return &Request{
		Instance:     it,
		InstanceType: it.Type,
		Zone:         "",
		AMI:          it.AMI,
		Count:        1,
		OnDemand:     true,
		ODP:          it.OnDemandPrice,
		Price:        it.OnDemandPrice,
	}
}

// NewSpotRequest builds a spot candidate for the given type and zone.
func NewSpotRequest(it *InstanceType, zone string, price float64) *Request {
	return &Request{
		Instance:     it,
		InstanceType: it.Type,
		Zone:         zone,
		AMI:          it.AMI,
		Count:        1,
		OnDemand:     false,
		ODP:          it.OnDemandPrice,
		Price:        price,
	}
}
