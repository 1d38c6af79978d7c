// Package config holds the typed server configuration.
package config

import "time"

// Config is the full server configuration, populated from flags, the
// environment, and an optional config file.
type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string `mapstructure:"addr"`

	// DatabaseURL selects the Postgres-backed catalog. Mutually exclusive
	// with StaticCatalog.
	DatabaseURL string `mapstructure:"database_url"`
	// StaticCatalog is the path of a YAML catalog file for the
	// database-free deployment mode.
	StaticCatalog string `mapstructure:"static_catalog"`

	// Endpoint is the externally advertised data-plane base URL embedded
	// in share-credentials payloads.
	Endpoint string `mapstructure:"endpoint"`

	// Object-storage signing overrides. Empty values fall back to the
	// ambient AWS credential chain and default region.
	AWSEndpoint        string `mapstructure:"aws_endpoint_url"`
	AWSRegion          string `mapstructure:"aws_region"`
	AWSAccessKeyID     string `mapstructure:"aws_access_key_id"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key"`

	// SignExpiry is how long vended file URLs stay valid.
	SignExpiry time.Duration `mapstructure:"sign_expiry"`

	// AdminUsername/AdminPassword feed the static admin credential store.
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`

	// TemplateDir holds the admin *.tmpl files; TemplateReload re-parses
	// them on every render (development convenience).
	TemplateDir    string `mapstructure:"template_dir"`
	TemplateReload bool   `mapstructure:"template_reload"`

	CORSOrigins []string `mapstructure:"cors_origins"`

	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}
