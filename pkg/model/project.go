package model

import (
	"slices"
	"time"
)

// SyncStatus is the last recorded outcome of a project pull.
type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusPending SyncStatus = "pending"
	SyncStatusError   SyncStatus = "error"
)

// Project is a container of tasks, optionally bound to an external task list.
type Project struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	OwnerID        string     `json:"owner_id"`
	Members        []string   `json:"members,omitempty"`
	ExternalListID string     `json:"external_list_id,omitempty"`
	SyncEnabled    bool       `json:"sync_enabled"`
	SyncStatus     SyncStatus `json:"sync_status,omitempty"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	LastSyncError  string     `json:"last_sync_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Bound reports whether the project has an external list binding.
func (p *Project) Bound() bool {
	return p.ExternalListID != ""
}

// CanAccess reports whether userID is the owner or a member.
func (p *Project) CanAccess(userID string) bool {
	if userID == "" {
		return false
	}
	return p.OwnerID == userID || slices.Contains(p.Members, userID)
}

// User is an account of the application.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncResult summarises a single pull.
type SyncResult struct {
	Success bool   `json:"success"`
	Added   int    `json:"added"`
	Updated int    `json:"updated"`
	Error   string `json:"error,omitempty"`
}
