package models

import "time"

// KVEntry backs the durable key-value store when it lives in a SQL database.
type KVEntry struct {
	Key       string    `gorm:"primaryKey;size:191"`
	Value     string    `gorm:"type:longtext;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (KVEntry) TableName() string { return "kv_entries" }
