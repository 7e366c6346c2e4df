package cve

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/random"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHighestPatchTag(t *testing.T) {
	tests := []struct {
		name    string
		current string
		tags    []string
		want    string
	}{
		{name: "newest in major", current: "2.31.0", tags: []string{"2.30.0", "2.31.0", "2.31.1", "2.32.0", "3.0.0"}, want: "2.32.0"},
		{name: "skips prerelease", current: "2.31.0", tags: []string{"2.31.1", "2.32.0-rc1"}, want: "2.31.1"},
		{name: "keeps v prefix", current: "v21.0.0", tags: []string{"v21.0.1", "latest"}, want: "v21.0.1"},
		{name: "nothing newer", current: "2.31.0", tags: []string{"2.30.0", "latest"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HighestPatchTag(semver.MustParse(tt.current), tt.tags))
		})
	}
}

func pushTags(t *testing.T, repo string, tags ...string) {
	t.Helper()
	img, err := random.Image(256, 1)
	require.NoError(t, err)
	for _, tag := range tags {
		ref, err := name.ParseReference(repo + ":" + tag)
		require.NoError(t, err)
		require.NoError(t, remote.Write(ref, img))
	}
}

func TestRegistryResolver_Resolve(t *testing.T) {
	srv := httptest.NewServer(registry.New())
	defer srv.Close()
	repo := strings.TrimPrefix(srv.URL, "http://") + "/stellar/stellar-horizon"
	pushTags(t, repo, "2.31.0", "2.31.1", "2.32.0", "2.33.0-rc1", "3.0.0")

	scanner := &fakeScanner{}
	r := &RegistryResolver{Scanner: scanner}
	got, err := r.Resolve(context.Background(), repo+":2.31.0")
	require.NoError(t, err)
	assert.Equal(t, repo+":2.32.0", got)
	assert.Equal(t, []string{repo + ":2.32.0"}, scanner.scanned)

	// A candidate that is still vulnerable is rejected.
	scanner.critical = 1
	got, err = r.Resolve(context.Background(), repo+":2.31.0")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRegistryResolver_NoTagToResolve(t *testing.T) {
	r := &RegistryResolver{Scanner: &fakeScanner{}}

	got, err := r.Resolve(context.Background(), "stellar/stellar-horizon@sha256:"+strings.Repeat("a", 64))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.Resolve(context.Background(), "stellar/stellar-horizon:latest")
	require.NoError(t, err)
	assert.Empty(t, got)
}
