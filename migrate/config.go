package migrate

import (
	"net/url"

	"github.com/input-output-hk/migrate-npm-registry/errors"
	"github.com/input-output-hk/migrate-npm-registry/selector"
)

// Config is the run-wide configuration. It is built once at startup and
// never modified afterwards.
type Config struct {
	// Source and Target are registry base URLs.
	Source string
	Target string

	// Force carries every source version forward, even versions already on
	// the target.
	Force bool

	// Pin restricts the migration to one version when non-empty.
	Pin string

	// WorkDir is where archives are staged.
	WorkDir string

	// KeepArchives leaves staged archives in WorkDir after publishing.
	KeepArchives bool

	// Concurrency caps the number of packages migrated at once. Zero or less
	// runs every package at once.
	Concurrency int
}

// Policy returns the version selection policy.
func (c Config) Policy() selector.Policy {
	return selector.Policy{Force: c.Force, Pin: c.Pin}
}

// Validate checks that both registries are absolute http(s) URLs.
func (c Config) Validate() error {
	for _, ep := range []struct{ name, value string }{
		{"source", c.Source},
		{"target", c.Target},
	} {
		if ep.value == "" {
			return errors.Newf(errors.CodeInvalidConfig, "%s registry is required", ep.name)
		}
		u, err := url.Parse(ep.value)
		if err != nil {
			return errors.WrapWithContext(err, errors.CodeInvalidConfig,
				"invalid registry URL", map[string]any{"registry": ep.name})
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.Newf(errors.CodeInvalidConfig,
				"%s registry %q must be an http or https URL", ep.name, ep.value)
		}
	}
	return nil
}
