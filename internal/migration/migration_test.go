package migration

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	return db
}

func TestRun_CreatesAllTables(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, Run(db))

	for _, model := range Models() {
		assert.True(t, db.Migrator().HasTable(model), "missing table for %T", model)
	}
}

// Raw WHERE fragments and the upsert conflict target spell the column as
// "iccid". The default naming strategy would emit "icc_id" for that field, so
// the generated schema must be pinned to the spelling the queries use.
func TestRun_IccidColumnMatchesRawQueries(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, Run(db))

	for _, model := range Models() {
		stmt := &gorm.Statement{DB: db}
		require.NoError(t, stmt.Parse(model))

		field := stmt.Schema.LookUpField("ICCID")
		if field == nil {
			continue
		}
		assert.Equal(t, "iccid", field.DBName, "%T", model)
		assert.True(t, db.Migrator().HasColumn(model, "iccid"), "%T", model)
	}
}
