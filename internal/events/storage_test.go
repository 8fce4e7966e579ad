package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestStorage(t *testing.T) Storage {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	storage, err := NewDatabaseStorage(db)
	require.NoError(t, err)
	return storage
}

func TestStorageRoundTrip(t *testing.T) {
	storage := newTestStorage(t)

	require.NoError(t, storage.Store(Event{
		ID:        "evt-1",
		Type:      "plugin.started",
		Source:    "plugin-manager",
		Payload:   map[string]any{"plugin_id": "quotes"},
		Timestamp: time.Now(),
	}))

	recent, err := storage.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "evt-1", recent[0].ID)
	assert.Equal(t, "plugin.started", recent[0].Type)
	assert.Equal(t, "quotes", recent[0].Payload["plugin_id"])
}

func TestStorageRecentNewestFirst(t *testing.T) {
	storage := newTestStorage(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, storage.Store(Event{
			ID:        string(rune('a' + i)),
			Type:      "seq.event",
			Source:    "test",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := storage.Recent(3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "e", recent[0].ID)
	assert.Equal(t, "d", recent[1].ID)
	assert.Equal(t, "c", recent[2].ID)
}

func TestStorageEventWithoutPayload(t *testing.T) {
	storage := newTestStorage(t)
	require.NoError(t, storage.Store(Event{
		ID: "bare", Type: "system.started", Source: "test", Timestamp: time.Now(),
	}))

	recent, err := storage.Recent(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Nil(t, recent[0].Payload)
}
