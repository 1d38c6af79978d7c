package config

import (
	"fmt"
	"strings"
)

// Validate performs structural validation on the config.
func (c Config) Validate() error {
	var errs []string

	if c.Addr == "" {
		errs = append(errs, "addr is required")
	}
	if c.DatabaseURL == "" && c.StaticCatalog == "" {
		errs = append(errs, "one of database_url or static_catalog is required")
	}
	if c.DatabaseURL != "" && c.StaticCatalog != "" {
		errs = append(errs, "database_url and static_catalog are mutually exclusive")
	}
	if c.SignExpiry <= 0 {
		errs = append(errs, "sign_expiry must be > 0")
	}
	if c.Endpoint == "" {
		errs = append(errs, "endpoint is required (advertised data-plane base URL)")
	}
	if c.AdminUsername == "" || c.AdminPassword == "" {
		errs = append(errs, "admin_username and admin_password are required")
	}
	if c.TemplateDir == "" {
		errs = append(errs, "template_dir is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
