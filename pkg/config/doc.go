// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	BASIN_HOST="0.0.0.0"
//	BASIN_PORT="8080"
//	BASIN_HEALTH_PORT="9090"
//	BASIN_READ_TIMEOUT="15s"
//	BASIN_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	BASIN_POSTGRES_URL="postgres://localhost/basin"
//	BASIN_POSTGRES_MAX_CONNS="25"
//	BASIN_POSTGRES_CONN_LIFETIME="30m"
//
// Auth settings:
//
//	BASIN_OIDC_ISSUER="https://keycloak.example.com/realms/basin"
//	BASIN_OIDC_CLIENT_ID="basin"
//	BASIN_ADMIN_ROLE="renku-admin"
//
// Authz settings:
//
//	BASIN_AUTHZ_ORACLE_URL="http://authz.internal:5000"
//	BASIN_AUTHZ_CACHE_ENABLED="true"
//	BASIN_AUTHZ_CACHE_TTL="5m"
//	BASIN_AUTHZ_L1_CACHE_SIZE="10000"
//	BASIN_REDIS_URL="redis://localhost:6379"
//
// Observability settings:
//
//	BASIN_LOG_LEVEL="info"  # debug, info, warn, error
//	BASIN_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/observability: Uses observability configuration
//   - pkg/middleware: Uses auth configuration
package config
