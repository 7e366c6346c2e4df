package cve

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"sigs.k8s.io/controller-runtime/pkg/log"

	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
)

// PatchResolver finds a patched image for an image the scanner could not
// name a fix for. It returns "" when no acceptable candidate exists.
type PatchResolver interface {
	Resolve(ctx context.Context, currentImage string) (string, error)
}

// RegistryResolver lists the repository tags of the current image and
// proposes the highest newer release of the same major version, provided a
// scan of that candidate finds nothing Critical.
type RegistryResolver struct {
	Scanner Scanner
	// Options are passed to every registry call (auth, transport).
	Options []remote.Option
}

// Resolve implements PatchResolver.
func (r *RegistryResolver) Resolve(ctx context.Context, currentImage string) (string, error) {
	logger := log.FromContext(ctx).WithValues("image", currentImage)

	ref, err := name.ParseReference(currentImage)
	if err != nil {
		return "", operatorerrors.Config("resolve patch", fmt.Errorf("failed to parse image reference: %w", err))
	}
	tag, ok := ref.(name.Tag)
	if !ok {
		logger.V(1).Info("Image is pinned by digest; no tag to resolve from")
		return "", nil
	}
	current, err := semver.NewVersion(tag.TagStr())
	if err != nil {
		logger.V(1).Info("Current tag is not a semantic version", "tag", tag.TagStr())
		return "", nil
	}

	opts := append([]remote.Option{remote.WithContext(ctx)}, r.Options...)
	tags, err := remote.List(ref.Context(), opts...)
	if err != nil {
		return "", operatorerrors.Network("list tags", fmt.Errorf("failed to list tags of %s: %w", ref.Context().Name(), err))
	}

	bestTag := HighestPatchTag(current, tags)
	if bestTag == "" {
		return "", nil
	}
	candidate := strings.TrimSuffix(currentImage, ":"+tag.TagStr()) + ":" + bestTag

	scan, err := r.Scanner.Scan(ctx, candidate)
	if err != nil {
		return "", err
	}
	if scan.CVECount.Critical > 0 || scan.HasCritical {
		logger.Info("Newest candidate still has critical vulnerabilities", "candidate", candidate, "critical", scan.CVECount.Critical)
		return "", nil
	}
	return candidate, nil
}

// HighestPatchTag returns the highest stable tag greater than current within
// its major version, keeping the tag's original spelling. It returns "" when
// there is none.
func HighestPatchTag(current *semver.Version, tags []string) string {
	var (
		best    *semver.Version
		bestTag string
	)
	for _, t := range tags {
		v, err := semver.NewVersion(t)
		if err != nil || v.Prerelease() != "" {
			continue
		}
		if v.Major() != current.Major() || !v.GreaterThan(current) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestTag = v, t
		}
	}
	return bestTag
}
