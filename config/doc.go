// Package config provides configuration loading and validation for burndrop.
//
// The package handles YAML configuration files, environment variables, and CLI flags
// with automatic merging and validation using go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s) - multiple files merged left-to-right
//  3. Environment variables (BURNDROP_ prefix), including those from a .env file
//  4. CLI flags
//
// A .env file in the working directory never overrides variables that are
// already set in the process environment.
//
// # Usage
//
//	cfg, err := config.Load([]string{"config.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Store in context for subcommands
//	ctx = config.WithContext(ctx, cfg)
//
//	// Retrieve later
//	cfg, err = config.FromContext(ctx)
//
// # Environment Variables
//
// All config keys map to environment variables with BURNDROP_ prefix:
//   - server.port → BURNDROP_SERVER_PORT
//   - service.default_ttl → BURNDROP_SERVICE_DEFAULT_TTL
//   - storage.s3.secret_key → BURNDROP_STORAGE_S3_SECRET_KEY
//
// # Configuration Structure
//
// The Config struct contains:
//   - Server: port, max_upload_size, conceal_auth_errors, timeouts
//   - Service: share TTLs, download limits, retries and bcrypt cost
//   - Sweeper: background reclamation of expired and exhausted shares
//   - Database: type (sqlite, postgres, bolt, memory), DSN, and table names
//   - Storage: type (filesystem, s3, memory), path, and S3 bucket settings
//   - RateLimit: wrong password budget per share and client
//   - CORS: cross-origin resource sharing settings
//   - Log: level, format, and an optional Sentry DSN
//
// # Validation
//
// Configuration is validated using struct tags:
//   - Port must be 1-65535
//   - service.max_ttl must not be shorter than service.default_ttl
//   - Database and storage types must be one of the supported backends
//   - An s3 storage needs storage.s3.bucket
//   - Log level must be debug, info, warn, or error
package config
