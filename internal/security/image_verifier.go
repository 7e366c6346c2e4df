// Package security verifies the signatures of patched images before a CVE
// rollout pins them.
package security

import (
	"context"
	"crypto"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	ggcrremote "github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/sigstore/cosign/v3/pkg/cosign"
	ociremote "github.com/sigstore/cosign/v3/pkg/oci/remote"
	"github.com/sigstore/cosign/v3/pkg/signature"
	"github.com/sigstore/sigstore-go/pkg/root"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// TrustedRootProvider returns the Sigstore trusted material used for keyless verification.
type TrustedRootProvider func() (root.TrustedMaterial, error)

// VerifyConfig selects the verification mode. Provide PublicKey for key-based
// verification, or Issuer and Subject for keyless.
type VerifyConfig struct {
	PublicKey        string
	Issuer           string
	Subject          string
	IgnoreTlog       bool
	ImagePullSecrets []corev1.LocalObjectReference
	Namespace        string
}

func (c VerifyConfig) validate() error {
	if c.PublicKey == "" && (c.Issuer == "" || c.Subject == "") {
		return fmt.Errorf("either PublicKey OR (Issuer and Subject) must be provided for image verification")
	}
	return nil
}

// ImageVerifier verifies container image signatures using Cosign.
// Verified digests are cached per verification config.
type ImageVerifier struct {
	logger      logr.Logger
	cache       *verificationCache
	client      client.Client
	trustedRoot TrustedRootProvider
}

// NewImageVerifier creates an ImageVerifier. The client reads ImagePullSecrets.
// A nil trustedRoot fetches the public-good Sigstore root through TUF on first
// keyless use.
func NewImageVerifier(logger logr.Logger, k8sClient client.Client, trustedRoot TrustedRootProvider) *ImageVerifier {
	if trustedRoot == nil {
		trustedRoot = fetchTrustedRootOnce()
	}
	return &ImageVerifier{
		logger:      logger,
		cache:       newVerificationCache(),
		client:      k8sClient,
		trustedRoot: trustedRoot,
	}
}

// Verify verifies imageRef and returns it pinned by digest
// (e.g. "stellar/stellar-core@sha256:abc...").
func (v *ImageVerifier) Verify(ctx context.Context, imageRef string, config VerifyConfig) (string, error) {
	if err := config.validate(); err != nil {
		return "", err
	}

	ref, err := name.ParseReference(imageRef)
	if err != nil {
		return "", fmt.Errorf("failed to parse image reference: %w", err)
	}

	var ggcrOpts []ggcrremote.Option
	ggcrOpts = append(ggcrOpts, ggcrremote.WithContext(ctx))
	keychain, err := v.buildKeychain(ctx, config.ImagePullSecrets, config.Namespace)
	if err != nil {
		return "", fmt.Errorf("failed to build keychain for image pull secrets: %w", err)
	}
	if keychain != nil {
		ggcrOpts = append(ggcrOpts, ggcrremote.WithAuthFromKeychain(keychain))
	}

	digest, err := resolveDigest(ref, ggcrOpts)
	if err != nil {
		return "", err
	}

	key := v.cacheKey(digest.String(), config)
	if v.cache.isVerifiedByKey(key) {
		v.logger.V(1).Info("Image verification cache hit", "digest", digest.String())
		return digest.String(), nil
	}

	v.logger.Info("Verifying image signature", "image", imageRef, "keyless", config.PublicKey == "", "ignoreTlog", config.IgnoreTlog)
	co, err := v.checkOpts(config, ggcrOpts)
	if err != nil {
		return "", err
	}

	// Verify the digest so the signature covers exactly what gets pinned.
	sigs, bundleVerified, err := cosign.VerifyImageSignatures(ctx, digest, co)
	if err != nil {
		return "", fmt.Errorf("image verification failed for %q: %w", imageRef, err)
	}
	if len(sigs) == 0 {
		return "", fmt.Errorf("no signatures found for image %q", imageRef)
	}

	v.cache.markVerifiedByKey(key)
	v.logger.Info("Image verification succeeded",
		"image", imageRef,
		"digest", digest.String(),
		"signatures", len(sigs),
		"bundleVerified", bundleVerified)
	return digest.String(), nil
}

func (v *ImageVerifier) checkOpts(config VerifyConfig, ggcrOpts []ggcrremote.Option) (*cosign.CheckOpts, error) {
	co := &cosign.CheckOpts{
		IgnoreTlog:         config.IgnoreTlog,
		RegistryClientOpts: []ociremote.Option{ociremote.WithRemoteOptions(ggcrOpts...)},
	}
	if config.PublicKey != "" {
		verifier, err := signature.LoadPublicKeyRaw([]byte(config.PublicKey), crypto.SHA256)
		if err != nil {
			return nil, fmt.Errorf("failed to create verifier from public key: %w", err)
		}
		co.SigVerifier = verifier
		return co, nil
	}

	trusted, err := v.trustedRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to load Sigstore trusted root: %w", err)
	}
	co.TrustedMaterial = trusted
	co.Identities = []cosign.Identity{{Issuer: config.Issuer, Subject: config.Subject}}
	return co, nil
}

func resolveDigest(ref name.Reference, opts []ggcrremote.Option) (name.Digest, error) {
	if d, ok := ref.(name.Digest); ok {
		return d, nil
	}
	desc, err := ggcrremote.Head(ref, opts...)
	if err != nil {
		return name.Digest{}, fmt.Errorf("failed to resolve image digest: %w", err)
	}
	d, err := name.NewDigest(fmt.Sprintf("%s@%s", ref.Context().Name(), desc.Digest.String()))
	if err != nil {
		return name.Digest{}, fmt.Errorf("failed to create digest reference: %w", err)
	}
	return d, nil
}

// cacheKey keys a verified digest by verification mode so a key-verified
// digest never satisfies a keyless check.
func (v *ImageVerifier) cacheKey(digest string, config VerifyConfig) string {
	if config.PublicKey != "" {
		sum := sha256.Sum256([]byte(config.PublicKey))
		return fmt.Sprintf("%s@key:%s", digest, hex.EncodeToString(sum[:8]))
	}
	return fmt.Sprintf("%s@oidc:%s|%s", digest, config.Issuer, config.Subject)
}

// buildKeychain merges the docker configs of imagePullSecrets. It returns nil
// when there is nothing to merge.
func (v *ImageVerifier) buildKeychain(ctx context.Context, imagePullSecrets []corev1.LocalObjectReference, namespace string) (authn.Keychain, error) {
	if len(imagePullSecrets) == 0 || v.client == nil {
		return nil, nil
	}

	type dockerConfig struct {
		Auths map[string]dockerAuthConfig `json:"auths"`
	}
	combined := map[string]dockerAuthConfig{}

	for _, secretRef := range imagePullSecrets {
		secret := &corev1.Secret{}
		if err := v.client.Get(ctx, types.NamespacedName{Namespace: namespace, Name: secretRef.Name}, secret); err != nil {
			return nil, fmt.Errorf("failed to get ImagePullSecret %s/%s: %w", namespace, secretRef.Name, err)
		}

		var dataKey string
		switch secret.Type {
		case corev1.SecretTypeDockerConfigJson:
			dataKey = corev1.DockerConfigJsonKey
		case corev1.SecretTypeDockercfg:
			dataKey = corev1.DockerConfigKey
		default:
			return nil, fmt.Errorf("ImagePullSecret %s/%s has invalid type %s, expected %s or %s",
				namespace, secretRef.Name, secret.Type, corev1.SecretTypeDockerConfigJson, corev1.SecretTypeDockercfg)
		}

		data, ok := secret.Data[dataKey]
		if !ok {
			return nil, fmt.Errorf("ImagePullSecret %s/%s missing key %s", namespace, secretRef.Name, dataKey)
		}

		var cfg dockerConfig
		if secret.Type == corev1.SecretTypeDockercfg {
			// Legacy .dockercfg is the auths map itself.
			err := json.Unmarshal(data, &cfg.Auths)
			if err != nil {
				return nil, fmt.Errorf("failed to parse docker config from ImagePullSecret %s/%s: %w", namespace, secretRef.Name, err)
			}
		} else if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse docker config from ImagePullSecret %s/%s: %w", namespace, secretRef.Name, err)
		}

		// Later secrets override earlier ones for the same registry.
		for registry, auth := range cfg.Auths {
			combined[registry] = auth
		}
	}

	if len(combined) == 0 {
		return nil, nil
	}
	return &dockerConfigKeychain{auths: combined}, nil
}

type dockerAuthConfig struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Auth     string `json:"auth,omitempty"`
}

// dockerConfigKeychain implements authn.Keychain over docker config auths.
type dockerConfigKeychain struct {
	auths map[string]dockerAuthConfig
}

func (k *dockerConfigKeychain) Resolve(resource authn.Resource) (authn.Authenticator, error) {
	auth, ok := k.auths[resource.RegistryStr()]
	if !ok {
		return authn.Anonymous, nil
	}
	if auth.Auth != "" {
		return authn.FromConfig(authn.AuthConfig{Auth: auth.Auth}), nil
	}
	if auth.Username != "" && auth.Password != "" {
		return &authn.Basic{Username: auth.Username, Password: auth.Password}, nil
	}
	return authn.Anonymous, nil
}

type verificationCache struct {
	mu    sync.RWMutex
	cache map[string]bool
}

func newVerificationCache() *verificationCache {
	return &verificationCache{cache: make(map[string]bool)}
}

func (c *verificationCache) isVerifiedByKey(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache[key]
}

func (c *verificationCache) markVerifiedByKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = true
}
