package config

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "TEEPRINT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "TEEPRINT_DB_DSN"
	EnvDBHost = "TEEPRINT_DB_HOST"
	EnvDBUser = "TEEPRINT_DB_USER"
	EnvDBName = "TEEPRINT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
