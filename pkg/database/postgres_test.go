package database

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medportal/config"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "medportal", DBPort: "5433"}
	assert.Equal(t, "host=db user=u password=p dbname=medportal port=5433 sslmode=disable TimeZone=UTC", DSN(cfg))
}

func TestMigrationsAreEmbeddedInPairs(t *testing.T) {
	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)

	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
