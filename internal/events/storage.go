package events

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Storage persists events for the admin API.
type Storage interface {
	Store(event Event) error
	Recent(limit int) ([]Event, error)
	Close() error
}

// StoredEvent is the database row for a persisted event.
type StoredEvent struct {
	ID        uint   `gorm:"primaryKey"`
	EventID   string `gorm:"index;size:64"`
	Type      string `gorm:"index;size:128"`
	Source    string `gorm:"size:128"`
	Payload   string
	Timestamp time.Time `gorm:"index"`
}

// TableName keeps the runtime's own tables under one namespace prefix.
func (StoredEvent) TableName() string {
	return "castbot_events"
}

type databaseStorage struct {
	db *gorm.DB
}

// NewDatabaseStorage returns gorm-backed event storage, migrating its table.
func NewDatabaseStorage(db *gorm.DB) (Storage, error) {
	if err := db.AutoMigrate(&StoredEvent{}); err != nil {
		return nil, err
	}
	return &databaseStorage{db: db}, nil
}

func (s *databaseStorage) Store(event Event) error {
	payload := ""
	if event.Payload != nil {
		data, err := json.Marshal(event.Payload)
		if err == nil {
			payload = string(data)
		}
	}
	row := StoredEvent{
		EventID:   event.ID,
		Type:      event.Type,
		Source:    event.Source,
		Payload:   payload,
		Timestamp: event.Timestamp,
	}
	return s.db.Create(&row).Error
}

func (s *databaseStorage) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []StoredEvent
	if err := s.db.Order("timestamp desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		event := Event{
			ID:        row.EventID,
			Type:      row.Type,
			Source:    row.Source,
			Timestamp: row.Timestamp,
		}
		if row.Payload != "" {
			var payload map[string]any
			if err := json.Unmarshal([]byte(row.Payload), &payload); err == nil {
				event.Payload = payload
			}
		}
		out = append(out, event)
	}
	return out, nil
}

func (s *databaseStorage) Close() error {
	return nil
}
