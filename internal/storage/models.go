package storage

import (
	"time"
)

// Owner is the author of a story as reported by the server.
type Owner struct {
	Name string `json:"name"`
}

// Story is the canonical, server-issued record.
type Story struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	PhotoURL    string   `json:"photoUrl"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	CreatedAt   string   `json:"createdAt"`
	Owner       Owner    `json:"owner"`
}

// LocalData holds the original submission payload of a story authored while
// offline, kept so the creation request can be replayed later.
type LocalData struct {
	Description string   `json:"description"`
	Photo       []byte   `json:"photo,omitempty"`
	PhotoName   string   `json:"photo_name,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
}

// FavoriteRecord is a locally persisted story: either a story the user
// bookmarked for offline access, or a locally authored story awaiting upload.
type FavoriteRecord struct {
	Story

	IsFav       bool       `json:"isFav"`
	IsSynced    bool       `json:"isSynced"`
	PendingSync bool       `json:"pendingSync"`
	LocalData   *LocalData `json:"localData,omitempty"`
	Token       string     `json:"token,omitempty"`
	SyncedAt    *time.Time `json:"syncedAt,omitempty"`

	// Seq records insertion order and is the deterministic sort tie-break.
	Seq uint64 `json:"seq"`
}

// OwnerName returns the display name used for grouping and filtering,
// defaulting to "Unknown" when the upstream field is missing or malformed.
func (r *FavoriteRecord) OwnerName() string {
	if r.Owner.Name == "" {
		return "Unknown"
	}
	return r.Owner.Name
}

// normalize fixes up fields every caller relies on before a record leaves
// the store.
func (r *FavoriteRecord) normalize() {
	r.Owner.Name = r.OwnerName()
}
