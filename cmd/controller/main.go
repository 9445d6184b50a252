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

package main

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"knative.dev/pkg/logging"
	"knative.dev/pkg/signals"

	"github.com/ryanchard/cloud-provisioner/pkg/controllers/provisioning"
	"github.com/ryanchard/cloud-provisioner/pkg/ledger"
	"github.com/ryanchard/cloud-provisioner/pkg/operator/options"
	"github.com/ryanchard/cloud-provisioner/pkg/providers/instance"
	"github.com/ryanchard/cloud-provisioner/pkg/providers/instancetype"
	"github.com/ryanchard/cloud-provisioner/pkg/providers/launchtemplate"
	"github.com/ryanchard/cloud-provisioner/pkg/providers/pricing"
	"github.com/ryanchard/cloud-provisioner/pkg/providers/subnet"
	"github.com/ryanchard/cloud-provisioner/pkg/scheduler/condor"
	"github.com/ryanchard/cloud-provisioner/pkg/tenant"
)

const subnetCacheTTL = 5 * time.Minute

func main() {
	opts := options.New().MustParse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("creating logger, %s", err))
	}
	defer func() { _ = zapLogger.Sync() }()

	ctx := signals.NewContext()
	ctx = logging.WithLogger(ctx, zapLogger.Sugar())
	ctx = options.ToContext(ctx, opts)

	db, err := sqlx.Open("postgres", opts.PostgresDSN())
	if err != nil {
		panic(fmt.Sprintf("opening database, %s", err))
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		panic(fmt.Sprintf("connecting to database, %s", err))
	}

	ec2For := func(t *tenant.Tenant) ec2iface.EC2API {
		return tenant.NewEC2Client(t, opts.Region)
	}

	requestLedger := ledger.New(db)
	subnetProvider := subnet.NewProvider(db, gocache.New(subnetCacheTTL, subnetCacheTTL))
	provisioner := provisioning.NewProvisioner(
		tenant.NewLoader(db, subnetProvider),
		condor.NewScheduler(),
		requestLedger,
		instancetype.NewProvider(db),
		pricing.NewProvider(ec2For),
		instance.NewProvider(requestLedger, launchtemplate.NewProvider(opts.CloudInitFile), ec2For),
	)
	provisioner.Run(ctx)
}
