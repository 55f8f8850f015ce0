package models

import "time"

type SyncState string

const (
	SyncStateUnauthenticated SyncState = "unauthenticated"
	SyncStateLoading         SyncState = "loading"
	SyncStateSynced          SyncState = "synced"
)

// ProfileEvent is a change notification delivered by the profile store.
type ProfileEvent struct {
	Type   string         `json:"type"`
	Record *ProfileRecord `json:"record"`
}

const (
	ProfileEventInsert = "INSERT"
	ProfileEventUpdate = "UPDATE"
	ProfileEventDelete = "DELETE"
)

type StatusMessage struct {
	Error     string     `json:"error,omitempty"`
	Success   string     `json:"success,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
