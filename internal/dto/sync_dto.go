package dto

// ─── Sync status (read-only probe) ──────────────────────────────────────────

// CollectionCounts breaks down unsynced items for one collection.
type CollectionCounts struct {
	Total      int `json:"total"`
	ToUpload   int `json:"toUpload"`
	ToDownload int `json:"toDownload"`
	Conflicts  int `json:"conflicts"`
}

// SyncStatusResponse mirrors the renderer contract for checkUnsyncedData.
type SyncStatusResponse struct {
	Success            bool                        `json:"success"`
	HasUnsyncedData    bool                        `json:"hasUnsyncedData"`
	TotalUnsyncedItems int                         `json:"totalUnsyncedItems"`
	UnsyncedCounts     map[string]CollectionCounts `json:"unsyncedCounts"`
}

// ─── performSync ────────────────────────────────────────────────────────────

type SyncResultResponse struct {
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp,omitempty"`
	Message   string `json:"message,omitempty"`
}

type LastSyncResponse struct {
	LastSyncTime *string `json:"lastSyncTime"`
}

type OnlineStatusResponse struct {
	Online bool `json:"online"`
}

// ─── Re-auth side channel ───────────────────────────────────────────────────

type ReauthResolveRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
