/*
Copyright 2025.

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

package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func TestParseFlags_Defaults(t *testing.T) {
	o, err := parseFlags(nil, envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8443", o.metricsAddr)
	assert.Equal(t, ":8081", o.probeAddr)
	assert.False(t, o.enableLeaderElection)
	assert.True(t, o.secureMetrics)
	assert.False(t, o.dryRun)
	assert.Equal(t, 3, o.maxConcurrentReconciles)
	assert.Equal(t, defaultScannerURL, o.scannerURL)
	assert.Zero(t, o.peerProbeTimeout)
	assert.True(t, o.enableWebhooks)
}

func TestParseFlags_Overrides(t *testing.T) {
	o, err := parseFlags([]string{
		"--leader-elect",
		"--metrics-secure=false",
		"--max-concurrent-reconciles=8",
		"--scanner-url=http://scanner:8080",
		"--peer-probe-timeout=2s",
		"--enable-webhooks=false",
		"--zap-log-level=debug",
	}, envOf(nil))
	require.NoError(t, err)

	assert.True(t, o.enableLeaderElection)
	assert.False(t, o.secureMetrics)
	assert.Equal(t, 8, o.maxConcurrentReconciles)
	assert.Equal(t, "http://scanner:8080", o.scannerURL)
	assert.Equal(t, 2*time.Second, o.peerProbeTimeout)
	assert.False(t, o.enableWebhooks)
}

func TestParseFlags_DryRun(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		want    bool
		wantErr bool
	}{
		{name: "off by default", want: false},
		{name: "flag", args: []string{"--dry-run"}, want: true},
		{name: "env", env: map[string]string{"DRY_RUN": "true"}, want: true},
		{name: "env false", env: map[string]string{"DRY_RUN": "false"}, want: false},
		{name: "flag wins over env", args: []string{"--dry-run=false"}, env: map[string]string{"DRY_RUN": "true"}, want: false},
		{name: "invalid env", env: map[string]string{"DRY_RUN": "maybe"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseFlags(tt.args, envOf(tt.env))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, o.dryRun)
		})
	}
}

func TestParseFlags_Rejects(t *testing.T) {
	for _, args := range [][]string{
		{"--max-concurrent-reconciles=0"},
		{"--peer-probe-timeout=-1s"},
		{"--unknown-flag"},
	} {
		_, err := parseFlags(args, envOf(nil))
		assert.Error(t, err, "args %v", args)
	}
}

func TestOperatorNamespace(t *testing.T) {
	assert.Equal(t, defaultOperatorNamespace, operatorNamespace(envOf(nil)))
	assert.Equal(t, "stellar-system", operatorNamespace(envOf(map[string]string{"POD_NAMESPACE": "stellar-system"})))
}
