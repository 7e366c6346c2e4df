package constants

// Resource name suffixes used by the operator when creating per-node resources.
const (
	SuffixCanary  = "-canary"
	SuffixPatched = "-patched"
)

// Well-known container names and ports.
const (
	ContainerNameNode = "stellar"

	PortNamePeer = "peer"
	PortNameHTTP = "http"

	PortCorePeer    int32 = 11625
	PortCoreHTTP    int32 = 11626
	PortHorizonHTTP int32 = 8000
	PortSorobanRPC  int32 = 8000
)
