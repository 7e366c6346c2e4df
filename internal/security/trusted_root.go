package security

import (
	"sync"

	"github.com/sigstore/sigstore-go/pkg/root"
)

// fetchTrustedRootOnce fetches the public-good Sigstore trusted root through
// TUF once and serves it to every later caller. A failed fetch is retried on
// the next call.
func fetchTrustedRootOnce() TrustedRootProvider {
	var (
		mu      sync.Mutex
		trusted root.TrustedMaterial
	)
	return func() (root.TrustedMaterial, error) {
		mu.Lock()
		defer mu.Unlock()
		if trusted != nil {
			return trusted, nil
		}
		tr, err := root.FetchTrustedRoot()
		if err != nil {
			return nil, err
		}
		trusted = tr
		return trusted, nil
	}
}
