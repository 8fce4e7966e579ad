package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	d, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return d
}

func TestMigrateCreatesTable(t *testing.T) {
	d := openTestDB(t)

	require.NoError(t, Migrate(d,
		`CREATE TABLE IF NOT EXISTS widgets (id INTEGER PRIMARY KEY, name TEXT)`,
	))

	assert.True(t, d.Migrator().HasTable("widgets"))
}

func TestMigrateIsIdempotent(t *testing.T) {
	d := openTestDB(t)
	stmt := `CREATE TABLE IF NOT EXISTS widgets (id INTEGER PRIMARY KEY, name TEXT)`

	require.NoError(t, Migrate(d, stmt))
	require.NoError(t, d.Exec(`INSERT INTO widgets (name) VALUES ('kept')`).Error)

	// Re-running the same migration must not touch existing data.
	require.NoError(t, Migrate(d, stmt))

	var count int64
	require.NoError(t, d.Table("widgets").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMigrateStopsOnFirstFailure(t *testing.T) {
	d := openTestDB(t)

	err := Migrate(d,
		`CREATE TABLE IF NOT EXISTS first (id INTEGER PRIMARY KEY)`,
		`THIS IS NOT SQL`,
		`CREATE TABLE IF NOT EXISTS never (id INTEGER PRIMARY KEY)`,
	)
	require.Error(t, err)

	assert.True(t, d.Migrator().HasTable("first"))
	assert.False(t, d.Migrator().HasTable("never"))
}

func TestMigrateRunsMultipleStatements(t *testing.T) {
	d := openTestDB(t)

	require.NoError(t, Migrate(d,
		`CREATE TABLE IF NOT EXISTS a (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE IF NOT EXISTS b (id INTEGER PRIMARY KEY)`,
		`CREATE INDEX IF NOT EXISTS idx_b_id ON b(id)`,
	))

	assert.True(t, d.Migrator().HasTable("a"))
	assert.True(t, d.Migrator().HasTable("b"))
}
