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

// Package launchtemplate renders the cloud-init user data passed to new
// worker instances.
package launchtemplate

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/ryanchard/cloud-provisioner/pkg/tenant"
)

// Provider renders the operator-supplied cloud-init template. The template
// uses $ip_addr, $cpus and $domain placeholders so workers can register with
// the tenant's submit host.
type Provider struct {
	path string
}

func NewProvider(path string) *Provider {
	return &Provider{path: path}
}

// UserData substitutes the tenant's addressing details and the chosen
// instance's cpu count into the template.
func (p *Provider) UserData(_ context.Context, t *tenant.Tenant, cpus int64) (string, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return "", fmt.Errorf("reading cloud-init template %s, %w", p.path, err)
	}
	vars := map[string]string{
		"ip_addr": t.PublicIP,
		"cpus":    strconv.FormatInt(cpus, 10),
		"domain":  t.Domain,
	}
	return os.Expand(string(raw), func(name string) string {
		return vars[name]
	}), nil
}
