package models

import "time"

// LinkStatus values reported by the status endpoint. When several terminal
// conditions hold at once the owner's explicit deactivation wins, then expiry,
// then the download limit.
const (
	StatusActive       = "active"
	StatusInactive     = "inactive"
	StatusExpired      = "expired"
	StatusLimitReached = "limit_reached"
)

// ShareLink grants time/count/password-bounded access to a set of files.
// The ID doubles as the public URL token, so it is generated from a
// cryptographically strong source and never reused, even after deletion.
type ShareLink struct {
	ID            string
	OwnerID       int64
	ShareAll      bool
	PasswordHash  *string // nil = no password gate
	MaxDownloads  *int    // nil = unlimited
	DownloadCount int
	ExpiresAt     *time.Time // nil = never expires
	IsActive      bool
	CreatedAt     time.Time
	DeletedAt     *time.Time

	// FileCount is the resolved member count at read time; for share_all
	// links it reflects the owner's current file set.
	FileCount int
}

// HasPassword reports whether the link is password gated.
func (s *ShareLink) HasPassword() bool {
	return s.PasswordHash != nil && *s.PasswordHash != ""
}

// IsExpired reports whether the expiry timestamp has passed.
func (s *ShareLink) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// IsLimitReached reports whether the download quota is exhausted.
func (s *ShareLink) IsLimitReached() bool {
	return s.MaxDownloads != nil && s.DownloadCount >= *s.MaxDownloads
}

// Status computes the link state fresh at the given instant.
func (s *ShareLink) Status(now time.Time) string {
	switch {
	case !s.IsActive:
		return StatusInactive
	case s.IsExpired(now):
		return StatusExpired
	case s.IsLimitReached():
		return StatusLimitReached
	default:
		return StatusActive
	}
}

// ShareLinkResponse is the owner-facing API shape of a link record.
type ShareLinkResponse struct {
	ID            string     `json:"id"`
	IsActive      bool       `json:"is_active"`
	HasPassword   bool       `json:"has_password"`
	DownloadCount int        `json:"download_count"`
	MaxDownloads  *int       `json:"max_downloads"`
	ExpiresAt     *time.Time `json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
	ShareAll      bool       `json:"share_all"`
	FileCount     int        `json:"file_count"`
}

// Response builds the API shape for this link.
func (s *ShareLink) Response() ShareLinkResponse {
	return ShareLinkResponse{
		ID:            s.ID,
		IsActive:      s.IsActive,
		HasPassword:   s.HasPassword(),
		DownloadCount: s.DownloadCount,
		MaxDownloads:  s.MaxDownloads,
		ExpiresAt:     s.ExpiresAt,
		CreatedAt:     s.CreatedAt,
		ShareAll:      s.ShareAll,
		FileCount:     s.FileCount,
	}
}

// Unlock records that a visitor session has proven knowledge of a link's
// password. Rows are purged the moment the link is deleted or deactivated.
type Unlock struct {
	ShareLinkID string
	SessionID   string
	UnlockedAt  time.Time
	ExpiresAt   time.Time
}
