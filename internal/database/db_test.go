package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bsudfrance/bsf-server/internal/models"
)

func TestOpenDefaultsToSQLite(t *testing.T) {
	db, err := Open(Config{})
	require.NoError(t, err)
	require.NotNil(t, db)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestAutoMigrateCreatesSchema(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", DSN: "file::memory:?_foreign_keys=1"})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))

	for _, model := range []any{
		&models.Member{}, &models.User{}, &models.Session{}, &models.Invitation{},
		&models.Event{}, &models.EventInvite{}, &models.EventRSVP{},
		&models.Recommendation{}, &models.RecommendationStatusHistory{}, &models.AuditLog{},
	} {
		require.True(t, db.Migrator().HasTable(model))
	}
}

func TestAutoMigrateNilHandle(t *testing.T) {
	require.Error(t, AutoMigrate(nil))
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "bsf", Name: "bsf", Host: "db", Port: 5433, Password: "secret"})
	require.NoError(t, err)
	require.Contains(t, dsn, "host=db")
	require.Contains(t, dsn, "port=5433")
	require.Contains(t, dsn, "sslmode=disable")

	_, err = buildPostgresDSN(Config{Name: "bsf"})
	require.Error(t, err)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "bsf", Password: "pw", Name: "bsf"})
	require.NoError(t, err)
	require.Contains(t, dsn, "bsf:pw@tcp(127.0.0.1:3306)/bsf")
	require.Contains(t, dsn, "parseTime=True")

	_, err = buildMySQLDSN(Config{User: "bsf"})
	require.Error(t, err)
}
