package config

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "NOMADAIR"

	AppEnvDev     = "dev"
	AppEnvStaging = "staging"
	AppEnvProd    = "prod"
)
