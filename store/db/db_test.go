package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemo/internal/profile"
)

func TestNewDBDriver(t *testing.T) {
	tests := []struct {
		name    string
		profile *profile.Profile
		want    string
		wantErr bool
	}{
		{"default is file", &profile.Profile{Data: t.TempDir()}, profile.DriverFile, false},
		{"sqlite", &profile.Profile{Driver: profile.DriverSQLite, DSN: ":memory:"}, profile.DriverSQLite, false},
		{"postgres without dsn", &profile.Profile{Driver: profile.DriverPostgres, EmbeddingDimensions: 3}, "", true},
		{"unknown", &profile.Profile{Driver: "mysql"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, err := NewDBDriver(tt.profile)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = driver.Close() })
			assert.Equal(t, tt.want, driver.Name())
		})
	}
}
