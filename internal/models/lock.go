package models

import (
	"context"
	"time"
)

// AppLock represents a distributed lock in the database
// Used for coordinating work between multiple instances in HA mode
type AppLock struct {
	LockName   string `gorm:"primaryKey;size:255"`
	InstanceID string `gorm:"size:255;not null"`
	AcquiredAt int64  `gorm:"not null;index"`
	ExpiresAt  int64  `gorm:"not null;index"`
}

// TableName specifies the table name for GORM
func (AppLock) TableName() string {
	return "app_locks"
}

// Locker is implemented by storages that can coordinate background work
// across instances.
type Locker interface {
	// TryLock acquires name for ttl. It returns false if another instance holds it.
	TryLock(ctx context.Context, name, instanceID string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name, instanceID string) error
}
