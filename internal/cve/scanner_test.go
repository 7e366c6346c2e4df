package cve

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
)

const sampleReport = `{
  "ArtifactName": "stellar/stellar-core:21.0.0",
  "PatchedImage": "stellar/stellar-core:21.0.1",
  "Results": [
    {
      "Target": "debian 12",
      "Vulnerabilities": [
        {"VulnerabilityID": "CVE-2026-0001", "PkgName": "openssl", "InstalledVersion": "3.0.1", "FixedVersion": "3.0.2", "Severity": "CRITICAL"},
        {"VulnerabilityID": "CVE-2026-0002", "PkgName": "zlib", "InstalledVersion": "1.2.13", "Severity": "medium"},
        {"VulnerabilityID": "CVE-2026-0003", "PkgName": "tar", "InstalledVersion": "1.34", "Severity": "NEGLIGIBLE"}
      ]
    },
    {
      "Target": "usr/bin/stellar-core",
      "Vulnerabilities": [
        {"VulnerabilityID": "CVE-2026-0001", "PkgName": "openssl", "InstalledVersion": "3.0.1", "FixedVersion": "3.0.2", "Severity": "CRITICAL"}
      ]
    }
  ]
}`

func testRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 0
	c.Logger = nil
	return c
}

func TestTrivyScanner_Scan(t *testing.T) {
	var got scanRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/scan", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleReport))
	}))
	defer srv.Close()

	s := NewTrivyScanner(srv.URL+"/", testRetryClient())
	res, err := s.Scan(context.Background(), "stellar/stellar-core:21.0.0")
	require.NoError(t, err)

	assert.Equal(t, "stellar/stellar-core:21.0.0", got.Image)
	assert.Equal(t, "stellar/stellar-core:21.0.0", res.CurrentImage)
	assert.Equal(t, "stellar/stellar-core:21.0.1", res.PatchedVersion)
	assert.Len(t, res.Vulnerabilities, 3, "duplicate findings are counted once")
	assert.Equal(t, stellarv1alpha1.CVECount{Critical: 1, Medium: 1, Unknown: 1}, res.CVECount)
	assert.True(t, res.RequiresUrgentPatch())
	assert.True(t, res.CanPatch())
	assert.False(t, res.ScanTimestamp.IsZero())
}

func TestTrivyScanner_ErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		code int
		want operatorerrors.Kind
	}{
		{name: "server error", code: http.StatusBadGateway, want: operatorerrors.KindNetwork},
		{name: "throttled", code: http.StatusTooManyRequests, want: operatorerrors.KindNetwork},
		{name: "bad request", code: http.StatusBadRequest, want: operatorerrors.KindConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.code)
			}))
			defer srv.Close()

			_, err := NewTrivyScanner(srv.URL, testRetryClient()).Scan(context.Background(), "stellar/stellar-core:21.0.0")
			require.Error(t, err)
			assert.Equal(t, tt.want, operatorerrors.KindOf(err))
		})
	}
}

func TestTrivyScanner_UnreadableReport(t *testing.T) {
	tests := []struct {
		name string
		body func(w http.ResponseWriter)
	}{
		{name: "malformed", body: func(w http.ResponseWriter) { _, _ = w.Write([]byte(`{"Results": [`)) }},
		{name: "oversized", body: func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"ArtifactName": "`))
			_, _ = w.Write(bytes.Repeat([]byte("a"), maxReportBytes))
			_, _ = w.Write([]byte(`"}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				tt.body(w)
			}))
			defer srv.Close()

			res, err := NewTrivyScanner(srv.URL, testRetryClient()).Scan(context.Background(), "stellar/stellar-core:21.0.0")
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, operatorerrors.KindNetwork, operatorerrors.KindOf(err))
		})
	}
}

func TestTrivyScanner_Unconfigured(t *testing.T) {
	_, err := NewTrivyScanner("", nil).Scan(context.Background(), "stellar/stellar-core:21.0.0")
	require.Error(t, err)
	assert.Equal(t, operatorerrors.KindConfig, operatorerrors.KindOf(err))
}

func TestDetectionFromReport_Clean(t *testing.T) {
	res := detectionFromReport("img:1", &trivyReport{}, metav1.Now())
	assert.False(t, res.RequiresUrgentPatch())
	assert.False(t, res.CanPatch())
	assert.Zero(t, res.CVECount.Total())
}

func TestFilterCritical(t *testing.T) {
	res := &stellarv1alpha1.CVEDetectionResult{
		Vulnerabilities: []stellarv1alpha1.Vulnerability{
			{CVEID: "a", Severity: stellarv1alpha1.SeverityHigh},
			{CVEID: "b", Severity: stellarv1alpha1.SeverityCritical},
			{CVEID: "c", Severity: stellarv1alpha1.SeverityLow},
		},
		CVECount:    stellarv1alpha1.CVECount{Critical: 1, High: 1, Low: 1},
		HasCritical: true,
	}
	FilterCritical(res)

	require.Len(t, res.Vulnerabilities, 1)
	assert.Equal(t, "b", res.Vulnerabilities[0].CVEID)
	assert.Equal(t, int32(3), res.CVECount.Total())
	assert.True(t, res.HasCritical)
}
