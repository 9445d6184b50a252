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

package options

import (
	"fmt"

	"go.uber.org/multierr"
)

func (o Options) Validate() error {
	return multierr.Combine(
		o.validateDatabase(),
		o.validateProvision(),
	)
}

func (o Options) validateDatabase() (err error) {
	if o.DBHost == "" {
		err = multierr.Append(err, fmt.Errorf("[Database] host is required"))
	}
	if o.DBName == "" {
		err = multierr.Append(err, fmt.Errorf("[Database] database is required"))
	}
	return err
}

func (o Options) validateProvision() (err error) {
	if o.OnDemandPriceThreshold <= 0 || o.OnDemandPriceThreshold > 1 {
		err = multierr.Append(err, fmt.Errorf("ondemand_price_threshold must be in (0, 1], got %f", o.OnDemandPriceThreshold))
	}
	if o.MaxRequests < 1 {
		err = multierr.Append(err, fmt.Errorf("max_requests must be at least 1, got %d", o.MaxRequests))
	}
	if o.RunRate < 1 {
		err = multierr.Append(err, fmt.Errorf("run_rate must be at least 1 second, got %d", o.RunRate))
	}
	if o.BidFloor <= 0 {
		err = multierr.Append(err, fmt.Errorf("bid_floor must be positive, got %f", o.BidFloor))
	}
	return err
}
