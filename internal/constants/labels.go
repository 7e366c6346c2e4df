package constants

// Common Kubernetes label keys used by the operator.
const (
	LabelAppName      = "app.kubernetes.io/name"
	LabelAppInstance  = "app.kubernetes.io/instance"
	LabelAppManagedBy = "app.kubernetes.io/managed-by"
	LabelAppComponent = "app.kubernetes.io/component"

	LabelStellarNode     = "stellar.org/node"
	LabelStellarNodeType = "stellar.org/node-type"
	// LabelDeployment separates the primary, patched and canary tracks.
	LabelDeployment = "stellar.org/deployment"
	// LabelServing marks the pods the Service routes to: primary and patched, never the canary.
	LabelServing = "stellar.org/serving"
)

// Common label values used by the operator.
const (
	LabelValueAppManagedByStellarOperator = "stellar-operator"

	LabelValueDeploymentPrimary = "primary"
	LabelValueDeploymentPatched = "patched"
	LabelValueDeploymentCanary  = "canary"
)
