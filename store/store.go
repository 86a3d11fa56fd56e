package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/internal/version"
)

// SchemaVersion is the storage schema written by this build.
const SchemaVersion = "0.3.0"

// Store provides access to the memory entries and the embedding queue.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// Capabilities returns the optional capabilities of the underlying driver.
func (s *Store) Capabilities() Capabilities {
	return s.driver.Capabilities()
}

// Migrate creates or upgrades the schema of the underlying driver.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.driver.Migrate(ctx); err != nil {
		return errors.Wrapf(err, "failed to migrate %s driver", s.driver.Name())
	}
	return nil
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// CheckSchemaVersion refuses a database stamped by a newer build.
// An empty stored version means a fresh database.
func CheckSchemaVersion(stored string) error {
	if stored == "" {
		return nil
	}
	if version.IsVersionGreaterThan(stored, SchemaVersion) {
		return errors.Errorf("database schema %s is newer than supported schema %s", stored, SchemaVersion)
	}
	return nil
}
