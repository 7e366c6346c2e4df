package dr

import (
	"sort"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
)

// SelectTargets returns the enabled peers ordered by priority, highest
// first. Peers of equal priority keep their declared order.
func SelectTargets(peers []stellarv1alpha1.PeerClusterConfig) []stellarv1alpha1.PeerClusterConfig {
	out := make([]stellarv1alpha1.PeerClusterConfig, 0, len(peers))
	for _, p := range peers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// PeerFor resolves the DR peer of spec: the enabled peer named by
// peerClusterId, or the first selected target when no id is configured.
func PeerFor(spec *stellarv1alpha1.StellarNodeSpec) (stellarv1alpha1.PeerClusterConfig, bool) {
	if spec.CrossCluster == nil {
		return stellarv1alpha1.PeerClusterConfig{}, false
	}
	if spec.DRConfig != nil && spec.DRConfig.PeerClusterID != "" {
		for _, p := range spec.CrossCluster.Peers {
			if p.ClusterID == spec.DRConfig.PeerClusterID && p.Enabled {
				return p, true
			}
		}
		return stellarv1alpha1.PeerClusterConfig{}, false
	}
	targets := SelectTargets(spec.CrossCluster.Peers)
	if len(targets) == 0 {
		return stellarv1alpha1.PeerClusterConfig{}, false
	}
	return targets[0], true
}

// SyncLag is the number of ledgers local trails peer by. It is never negative.
func SyncLag(peer, local int64) int64 {
	if peer <= local {
		return 0
	}
	return peer - local
}
