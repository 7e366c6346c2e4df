package storage

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
)

// SecretKey constants define the expected keys in credentials Secrets.
const (
	// SecretKeyAccessKeyID is the key for the access key ID.
	SecretKeyAccessKeyID = "accessKeyId"
	// SecretKeySecretAccessKey is the key for the secret access key.
	SecretKeySecretAccessKey = "secretAccessKey"
	// SecretKeySessionToken is the optional key for session tokens.
	SecretKeySessionToken = "sessionToken"
	// SecretKeyCACert is the optional key for a custom CA certificate.
	SecretKeyCACert = "caCert"
)

// Credentials holds the parsed credentials from a Kubernetes Secret.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// CACert is an optional PEM-encoded CA certificate.
	CACert []byte
}

// LoadCredentials loads S3 credentials from a Secret in the node's namespace.
// A nil secretRef returns nil so the default AWS credential chain is used.
func LoadCredentials(ctx context.Context, c client.Client, secretRef *corev1.LocalObjectReference, namespace string) (*Credentials, error) {
	if secretRef == nil {
		return nil, nil
	}
	if namespace == "" {
		return nil, operatorerrors.Config("load credentials", fmt.Errorf("namespace is required"))
	}

	secret := &corev1.Secret{}
	if err := c.Get(ctx, types.NamespacedName{Namespace: namespace, Name: secretRef.Name}, secret); err != nil {
		return nil, fmt.Errorf("failed to get credentials Secret %s/%s: %w", namespace, secretRef.Name, err)
	}

	creds := &Credentials{
		AccessKeyID:     string(secret.Data[SecretKeyAccessKeyID]),
		SecretAccessKey: string(secret.Data[SecretKeySecretAccessKey]),
		SessionToken:    string(secret.Data[SecretKeySessionToken]),
		CACert:          secret.Data[SecretKeyCACert],
	}

	// Both keys or neither; an empty pair falls back to workload identity.
	if (creds.AccessKeyID == "") != (creds.SecretAccessKey == "") {
		return nil, operatorerrors.Config("load credentials", fmt.Errorf("credentials Secret %s/%s must contain both %s and %s, or neither",
			namespace, secretRef.Name, SecretKeyAccessKeyID, SecretKeySecretAccessKey))
	}

	return creds, nil
}
