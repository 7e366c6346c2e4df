package constants

// Environment variable keys read by the operator.
const (
	EnvPodNamespace = "POD_NAMESPACE"
	EnvDryRun       = "DRY_RUN"
	// EnvOperatorServiceAccount names the operator's ServiceAccount.
	EnvOperatorServiceAccount = "OPERATOR_SERVICE_ACCOUNT_NAME"
	// EnvBreakGlassAdminGroups lists groups that may edit managed objects in maintenance mode.
	EnvBreakGlassAdminGroups = "STELLAR_BREAKGLASS_ADMIN_GROUPS"
	// EnvSystemSAAllowlist lists extra namespace:name ServiceAccounts allowed to edit managed objects.
	EnvSystemSAAllowlist = "STELLAR_SYSTEM_SA_ALLOWLIST"

	EnvNetworkPassphrase = "NETWORK_PASSPHRASE"
	EnvStellarCoreURL    = "STELLAR_CORE_URL"
	EnvDatabaseURL       = "DATABASE_URL"
)
