package security

import (
	"context"
	"fmt"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
)

// VerifyImageForNode verifies imageRef with the node's cveHandling.imageVerification
// settings and returns the digest-pinned reference. It returns imageRef unchanged
// when verification is not configured.
func (v *ImageVerifier) VerifyImageForNode(ctx context.Context, node *stellarv1alpha1.StellarNode, imageRef string) (string, error) {
	if node == nil {
		return "", fmt.Errorf("node is required")
	}
	if imageRef == "" {
		return "", fmt.Errorf("image reference is required")
	}
	if node.Spec.CVEHandling == nil || node.Spec.CVEHandling.ImageVerification == nil {
		return imageRef, nil
	}
	iv := node.Spec.CVEHandling.ImageVerification
	return v.Verify(ctx, imageRef, VerifyConfig{
		PublicKey:        iv.PublicKey,
		Issuer:           iv.Issuer,
		Subject:          iv.Subject,
		IgnoreTlog:       iv.IgnoreTlog,
		ImagePullSecrets: iv.ImagePullSecrets,
		Namespace:        node.Namespace,
	})
}
