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
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/ini.v1"
)

type optionsKey struct{}

// Options holds the process-wide configuration: the file paths supplied on
// the command line plus everything read from the INI config file. It is
// resolved once at startup and travels down to components via the context.
type Options struct {
	*flag.FlagSet

	ConfigFile    string
	CloudInitFile string
	Region        string

	// [Database]
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	// [Provision]
	OnDemandPriceThreshold float64
	MaxRequests            int
	RunRate                int
	BidFloor               float64
}

// New creates an Options struct and registers CLI flags and environment
// variables to fill-in the Options struct fields
func New() *Options {
	opts := &Options{}
	f := flag.NewFlagSet("provisioner", flag.ContinueOnError)
	opts.FlagSet = f

	f.StringVar(&opts.ConfigFile, "config-file", withDefault("CONFIG_FILE", "provisioner.ini"), "Path to the INI configuration file")
	f.StringVar(&opts.CloudInitFile, "cloudinit-file", withDefault("CLOUDINIT_FILE", "cloudinit.cfg"), "Path to the cloud-init user-data template")
	f.StringVar(&opts.Region, "region", withDefault("AWS_REGION", "us-east-1"), "AWS region used when constructing EC2 clients")
	return opts
}

// MustParse reads the user passed flags, environment variables, the config
// file, and default values. Options are validated and panics if an error is
// returned
func (o *Options) MustParse() *Options {
	err := o.Parse(os.Args[1:])

	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		panic(err)
	}
	if err := o.LoadConfigFile(); err != nil {
		panic(err)
	}
	if err := o.Validate(); err != nil {
		panic(err)
	}
	return o
}

// LoadConfigFile reads the [Database] and [Provision] sections of the INI
// file into the Options struct.
func (o *Options) LoadConfigFile() error {
	cfg, err := ini.Load(o.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading config file %s, %w", o.ConfigFile, err)
	}

	db := cfg.Section("Database")
	o.DBUser = db.Key("user").String()
	o.DBPassword = db.Key("password").String()
	o.DBHost = db.Key("host").String()
	o.DBPort = db.Key("port").String()
	o.DBName = db.Key("database").String()

	prov := cfg.Section("Provision")
	if o.OnDemandPriceThreshold, err = prov.Key("ondemand_price_threshold").Float64(); err != nil {
		return fmt.Errorf("parsing ondemand_price_threshold, %w", err)
	}
	if o.MaxRequests, err = prov.Key("max_requests").Int(); err != nil {
		return fmt.Errorf("parsing max_requests, %w", err)
	}
	if o.RunRate, err = prov.Key("run_rate").Int(); err != nil {
		return fmt.Errorf("parsing run_rate, %w", err)
	}
	o.BidFloor = prov.Key("bid_floor").MustFloat64(0.40)
	return nil
}

// PostgresDSN builds the connection string for the configured database.
func (o *Options) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		url.QueryEscape(o.DBUser), url.QueryEscape(o.DBPassword), o.DBHost, o.DBPort, o.DBName)
}

func ToContext(ctx context.Context, opts *Options) context.Context {
	return context.WithValue(ctx, optionsKey{}, opts)
}

func FromContext(ctx context.Context) *Options {
	retval := ctx.Value(optionsKey{})
	if retval == nil {
		// This is developer error if this happens, so we should panic
		panic("options doesn't exist in context")
	}
	return retval.(*Options)
}

func withDefault(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}
