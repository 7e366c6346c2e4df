package v1alpha1

// DefaultMaxEventsPerRequest is the event page limit used for migrated Soroban RPC nodes.
const DefaultMaxEventsPerRequest int32 = 10000

// ToSorobanConfig derives a Soroban RPC config from a Horizon config. The core
// endpoint is carried over, preflight is forced on and the events limit is fixed.
// Captive-core settings have no Horizon equivalent and are left unset.
func (h HorizonConfig) ToSorobanConfig() SorobanConfig {
	return SorobanConfig{
		StellarCoreURL:      h.StellarCoreURL,
		EnablePreflight:     true,
		MaxEventsPerRequest: DefaultMaxEventsPerRequest,
	}
}
