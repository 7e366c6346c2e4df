package cve

import (
	"context"
	"encoding/json"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/client"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/storage"
)

// ReportArchiver stores a scan report and returns its content identifier.
type ReportArchiver interface {
	Archive(ctx context.Context, node *stellarv1alpha1.StellarNode, report *stellarv1alpha1.CVEDetectionResult) (string, error)
}

// StorageArchiver archives reports to the backend named by the node's
// cveHandling.reportArchive.
type StorageArchiver struct {
	Client client.Client
	// Open builds the backend. Defaults to storage.Open.
	Open func(ctx context.Context, c client.Client, namespace string, cfg *stellarv1alpha1.ReportArchiveConfig) (*storage.Backend, error)
}

// Archive implements ReportArchiver. It returns "" without error when the
// node has no archive configured.
func (a *StorageArchiver) Archive(ctx context.Context, node *stellarv1alpha1.StellarNode, report *stellarv1alpha1.CVEDetectionResult) (string, error) {
	if node.Spec.CVEHandling == nil || node.Spec.CVEHandling.ReportArchive == nil {
		return "", nil
	}
	open := a.Open
	if open == nil {
		open = storage.Open
	}
	backend, err := open(ctx, a.Client, node.Namespace, node.Spec.CVEHandling.ReportArchive)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to encode scan report: %w", err)
	}
	return backend.Upload(ctx, data, storage.UploadMetadata{
		Filename:    fmt.Sprintf("%s-%s-%d.json", node.Namespace, node.Name, report.ScanTimestamp.Unix()),
		ContentType: "application/json",
		Tags: map[string]string{
			"node":      node.Name,
			"namespace": node.Namespace,
			"image":     report.CurrentImage,
		},
	})
}
