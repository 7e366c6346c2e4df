// Package cve scans node images, resolves patched versions and drives the
// canary-then-staged rollout of a patch.
package cve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/constants"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
)

// maxReportBytes bounds the scan report read from the service.
const maxReportBytes = 32 << 20

// Scanner scans a container image for vulnerabilities.
type Scanner interface {
	Scan(ctx context.Context, image string) (*stellarv1alpha1.CVEDetectionResult, error)
}

// trivyReport is the subset of the Trivy JSON report the operator reads.
type trivyReport struct {
	ArtifactName string        `json:"ArtifactName"`
	Results      []trivyResult `json:"Results"`
	// PatchedImage is set by scan services that know a fixed image.
	PatchedImage string `json:"PatchedImage,omitempty"`
}

type trivyResult struct {
	Target          string               `json:"Target"`
	Vulnerabilities []trivyVulnerability `json:"Vulnerabilities"`
}

type trivyVulnerability struct {
	VulnerabilityID  string `json:"VulnerabilityID"`
	PkgName          string `json:"PkgName"`
	InstalledVersion string `json:"InstalledVersion"`
	FixedVersion     string `json:"FixedVersion"`
	Severity         string `json:"Severity"`
	Description      string `json:"Description"`
}

type scanRequest struct {
	Image string `json:"image"`
}

// TrivyScanner asks a scan service for a Trivy JSON report of an image.
// The service is called as POST {BaseURL}/scan with body {"image": ref}.
type TrivyScanner struct {
	BaseURL string
	client  *retryablehttp.Client
	now     func() time.Time
}

// NewTrivyScanner returns a scanner for the service at baseURL.
func NewTrivyScanner(baseURL string, client *retryablehttp.Client) *TrivyScanner {
	if client == nil {
		client = retryablehttp.NewClient()
		client.RetryMax = 2
		client.Logger = nil
	}
	return &TrivyScanner{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		now:     time.Now,
	}
}

// Scan returns the detection result for image.
func (s *TrivyScanner) Scan(ctx context.Context, image string) (*stellarv1alpha1.CVEDetectionResult, error) {
	if s.BaseURL == "" {
		return nil, operatorerrors.Config("scan", fmt.Errorf("scanner URL is not configured"))
	}
	if image == "" {
		return nil, operatorerrors.Config("scan", fmt.Errorf("image is required"))
	}
	ctx, cancel := context.WithTimeout(ctx, constants.ScanTimeout)
	defer cancel()

	body, err := json.Marshal(scanRequest{Image: image})
	if err != nil {
		return nil, fmt.Errorf("failed to encode scan request: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/scan", bytes.NewReader(body))
	if err != nil {
		return nil, operatorerrors.Config("scan", fmt.Errorf("failed to build scan request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, operatorerrors.Network("scan", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("scanner returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, operatorerrors.Network("scan", err)
		}
		return nil, operatorerrors.Config("scan", err)
	}

	var report trivyReport
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReportBytes)).Decode(&report); err != nil {
		return nil, operatorerrors.Network("scan", fmt.Errorf("failed to decode scan report for %s: %w", image, err))
	}
	return detectionFromReport(image, &report, metav1.NewTime(s.now())), nil
}

// detectionFromReport flattens a Trivy report into a detection result.
// Findings reported by several targets are counted once.
func detectionFromReport(image string, report *trivyReport, scannedAt metav1.Time) *stellarv1alpha1.CVEDetectionResult {
	res := &stellarv1alpha1.CVEDetectionResult{
		CurrentImage:   image,
		PatchedVersion: report.PatchedImage,
		ScanTimestamp:  scannedAt,
	}
	seen := map[string]struct{}{}
	for _, r := range report.Results {
		for _, v := range r.Vulnerabilities {
			key := v.VulnerabilityID + "/" + v.PkgName + "/" + v.InstalledVersion
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			sev := stellarv1alpha1.ParseSeverity(v.Severity)
			res.Vulnerabilities = append(res.Vulnerabilities, stellarv1alpha1.Vulnerability{
				CVEID:            v.VulnerabilityID,
				Severity:         sev,
				Package:          v.PkgName,
				InstalledVersion: v.InstalledVersion,
				FixedVersion:     v.FixedVersion,
				Description:      v.Description,
			})
			res.CVECount.Add(sev)
			if sev == stellarv1alpha1.SeverityCritical {
				res.HasCritical = true
			}
		}
	}
	return res
}

// FilterCritical drops every finding below Critical from the reported list.
// Counts and urgency are left as scanned.
func FilterCritical(res *stellarv1alpha1.CVEDetectionResult) {
	kept := res.Vulnerabilities[:0]
	for _, v := range res.Vulnerabilities {
		if v.Severity == stellarv1alpha1.SeverityCritical {
			kept = append(kept, v)
		}
	}
	res.Vulnerabilities = kept
}
