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

package test

import (
	"github.com/ryanchard/cloud-provisioner/pkg/operator/options"
)

// Options returns provisioning options with sane test defaults.
func Options() *options.Options {
	return &options.Options{
		ConfigFile:             "provisioner.ini",
		CloudInitFile:          "cloudinit.cfg",
		Region:                 "us-east-1",
		OnDemandPriceThreshold: 0.8,
		MaxRequests:            3,
		RunRate:                60,
		BidFloor:               0.40,
	}
}
