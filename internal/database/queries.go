package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/RaUnAkKS/fileshare/internal/models"
)

// User queries

// CreateUser inserts a new user into the database.
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	result, err := db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, user.Username, user.Email, user.PasswordHash, user.IsActive, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get user ID: %w", err)
	}

	user.ID = id
	return nil
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, is_active, created_at, updated_at, last_login_at
		FROM users WHERE id = ?
	`, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, is_active, created_at, updated_at, last_login_at
		FROM users WHERE email = ? COLLATE NOCASE
	`, email).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateUserLastLogin updates the user's last login timestamp.
func (db *DB) UpdateUserLastLogin(ctx context.Context, userID int64) error {
	_, err := db.ExecContext(ctx, `
		UPDATE users SET last_login_at = ? WHERE id = ?
	`, time.Now().UTC(), userID)
	return err
}

// File queries

const fileColumns = "id, owner_id, original_filename, content_type, file_size, storage_key, uploaded_at"

func scanFile(row interface{ Scan(...interface{}) error }) (*models.File, error) {
	f := &models.File{}
	err := row.Scan(&f.ID, &f.OwnerID, &f.OriginalFilename, &f.ContentType,
		&f.FileSize, &f.StorageKey, &f.UploadedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// CreateFile inserts a new file registry row.
func (db *DB) CreateFile(ctx context.Context, file *models.File) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO files (id, owner_id, original_filename, content_type, file_size, storage_key, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, file.ID, file.OwnerID, file.OriginalFilename, file.ContentType,
		file.FileSize, file.StorageKey, file.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// GetFileByID retrieves a file by ID.
func (db *DB) GetFileByID(ctx context.Context, id string) (*models.File, error) {
	row := db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE id = ?", id)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// GetFileByStorageKey retrieves a file by its blob storage key.
func (db *DB) GetFileByStorageKey(ctx context.Context, key string) (*models.File, error) {
	row := db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE storage_key = ?", key)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// CountFilesOwnedOf returns how many of the given file ids are owned by ownerID.
// Used to verify that a share request does not reference foreign files.
func (db *DB) CountFilesOwnedOf(ctx context.Context, ownerID int64, fileIDs []string) (int, error) {
	if len(fileIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(fileIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(fileIDs)+1)
	args = append(args, ownerID)
	for _, id := range fileIDs {
		args = append(args, id)
	}

	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM files WHERE owner_id = ? AND id IN ("+placeholders+")",
		args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count owned files: %w", err)
	}
	return count, nil
}

// ListFilesByOwner retrieves all files owned by a user, newest first.
func (db *DB) ListFilesByOwner(ctx context.Context, ownerID int64) ([]models.File, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE owner_id = ? ORDER BY uploaded_at DESC, id DESC",
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	return collectFiles(rows)
}

// DeleteFile removes a file registry row and returns its storage key for blob
// cleanup. Returns empty key if the file does not exist or is not owned.
func (db *DB) DeleteFile(ctx context.Context, ownerID int64, id string) (string, error) {
	var key string
	err := db.QueryRowContext(ctx,
		"SELECT storage_key FROM files WHERE id = ? AND owner_id = ?", id, ownerID).Scan(&key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up file: %w", err)
	}

	_, err = db.ExecContext(ctx, "DELETE FROM files WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return "", fmt.Errorf("failed to delete file: %w", err)
	}
	return key, nil
}

// DeleteAllFiles removes every file owned by a user and returns the orphaned
// storage keys for blob cleanup.
func (db *DB) DeleteAllFiles(ctx context.Context, ownerID int64) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT storage_key FROM files WHERE owner_id = ?", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan storage key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM files WHERE owner_id = ?", ownerID); err != nil {
		return nil, fmt.Errorf("failed to delete files: %w", err)
	}
	return keys, nil
}

func collectFiles(rows *sql.Rows) ([]models.File, error) {
	var files []models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// Share link queries

const shareColumns = `id, owner_id, share_all, password_hash, max_downloads,
	download_count, expires_at, is_active, created_at, deleted_at`

func scanShareLink(row interface{ Scan(...interface{}) error }) (*models.ShareLink, error) {
	s := &models.ShareLink{}
	err := row.Scan(&s.ID, &s.OwnerID, &s.ShareAll, &s.PasswordHash, &s.MaxDownloads,
		&s.DownloadCount, &s.ExpiresAt, &s.IsActive, &s.CreatedAt, &s.DeletedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CreateShareLink inserts a share link and its explicit file memberships in a
// single transaction.
func (db *DB) CreateShareLink(ctx context.Context, link *models.ShareLink, fileIDs []string) error {
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO share_links (id, owner_id, share_all, password_hash, max_downloads,
				download_count, expires_at, is_active, created_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, 1, ?)
		`, link.ID, link.OwnerID, link.ShareAll, link.PasswordHash,
			link.MaxDownloads, link.ExpiresAt, link.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert share link: %w", err)
		}

		for _, fileID := range fileIDs {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO share_link_files (share_link_id, file_id) VALUES (?, ?)",
				link.ID, fileID)
			if err != nil {
				return fmt.Errorf("failed to insert share link file: %w", err)
			}
		}
		return nil
	})
}

// GetShareLink retrieves a live share link by ID. Deleted links are
// indistinguishable from ones that never existed.
func (db *DB) GetShareLink(ctx context.Context, id string) (*models.ShareLink, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+shareColumns+" FROM share_links WHERE id = ? AND deleted_at IS NULL", id)
	s, err := scanShareLink(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get share link: %w", err)
	}
	return s, nil
}

// ShareLinkIDExists reports whether an id was ever issued, deleted links
// included. Used to guarantee ids are never reassigned.
func (db *DB) ShareLinkIDExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM share_links WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check share link id: %w", err)
	}
	return n > 0, nil
}

// ShareLinkPage is one keyset-paginated page of an owner's share links.
type ShareLinkPage struct {
	Links      []models.ShareLink
	TotalCount int
	HasMore    bool
}

// ListShareLinks retrieves one page of an owner's live share links, newest
// first. The cursor is the (createdAt, id) pair of the last row of the
// previous page; zero values mean the first page. search filters by current
// activity flag: "active", "inactive" or empty for all.
func (db *DB) ListShareLinks(ctx context.Context, ownerID int64, search string, cursorCreatedAt time.Time, cursorID string, limit int) (*ShareLinkPage, error) {
	where := "owner_id = ? AND deleted_at IS NULL"
	args := []interface{}{ownerID}

	switch search {
	case "active":
		where += " AND is_active = 1"
	case "inactive":
		where += " AND is_active = 0"
	}

	countQuery := "SELECT COUNT(*) FROM share_links WHERE " + where
	var total int
	if err := db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count share links: %w", err)
	}

	if !cursorCreatedAt.IsZero() {
		where += " AND (created_at < ? OR (created_at = ? AND id < ?))"
		args = append(args, cursorCreatedAt, cursorCreatedAt, cursorID)
	}

	// Fetch one extra row to detect whether another page exists.
	args = append(args, limit+1)
	rows, err := db.QueryContext(ctx,
		"SELECT "+shareColumns+" FROM share_links WHERE "+where+
			" ORDER BY created_at DESC, id DESC LIMIT ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list share links: %w", err)
	}
	defer rows.Close()

	var links []models.ShareLink
	for rows.Next() {
		s, err := scanShareLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share link: %w", err)
		}
		links = append(links, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &ShareLinkPage{TotalCount: total}
	if len(links) > limit {
		page.HasMore = true
		links = links[:limit]
	}
	page.Links = links
	return page, nil
}

// SetShareLinkActive flips the owner kill switch. Deactivation purges unlock
// sessions so password re-entry is required if the link is re-enabled.
func (db *DB) SetShareLinkActive(ctx context.Context, id string, active bool) error {
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE share_links SET is_active = ? WHERE id = ? AND deleted_at IS NULL", active, id)
		if err != nil {
			return fmt.Errorf("failed to update share link: %w", err)
		}
		if !active {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM share_unlocks WHERE share_link_id = ?", id); err != nil {
				return fmt.Errorf("failed to purge unlocks: %w", err)
			}
		}
		return nil
	})
}

// SoftDeleteShareLink marks a link deleted and purges its memberships and
// unlock sessions. The row itself stays so the id is never reassigned.
func (db *DB) SoftDeleteShareLink(ctx context.Context, id string) error {
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE share_links SET deleted_at = ?, is_active = 0
			WHERE id = ? AND deleted_at IS NULL
		`, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("failed to delete share link: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM share_link_files WHERE share_link_id = ?", id); err != nil {
			return fmt.Errorf("failed to purge link files: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM share_unlocks WHERE share_link_id = ?", id); err != nil {
			return fmt.Errorf("failed to purge unlocks: %w", err)
		}
		return nil
	})
}

// TryIncrementDownloadCount is the atomic download gate: a single conditional
// update that both re-checks every eligibility condition and consumes one
// download slot. Under concurrent requests at max_downloads-1 exactly one
// caller wins. Returns false when the gate is closed for any reason.
func (db *DB) TryIncrementDownloadCount(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE share_links SET download_count = download_count + 1
		WHERE id = ?
			AND deleted_at IS NULL
			AND is_active = 1
			AND (expires_at IS NULL OR expires_at > ?)
			AND (max_downloads IS NULL OR download_count < max_downloads)
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to increment download count: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// ResolveShareFiles returns the current member file set of a link in
// deterministic (uploaded_at, id) order. For share_all links membership is
// recomputed from the owner's current files on every call.
func (db *DB) ResolveShareFiles(ctx context.Context, link *models.ShareLink) ([]models.File, error) {
	var rows *sql.Rows
	var err error

	if link.ShareAll {
		rows, err = db.QueryContext(ctx,
			"SELECT "+fileColumns+" FROM files WHERE owner_id = ? ORDER BY uploaded_at ASC, id ASC",
			link.OwnerID)
	} else {
		rows, err = db.QueryContext(ctx, `
			SELECT f.id, f.owner_id, f.original_filename, f.content_type, f.file_size, f.storage_key, f.uploaded_at
			FROM files f
			JOIN share_link_files slf ON slf.file_id = f.id
			WHERE slf.share_link_id = ?
			ORDER BY f.uploaded_at ASC, f.id ASC
		`, link.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve share files: %w", err)
	}
	defer rows.Close()

	return collectFiles(rows)
}

// CountShareFiles returns the current member count of a link.
func (db *DB) CountShareFiles(ctx context.Context, link *models.ShareLink) (int, error) {
	var query string
	var arg interface{}
	if link.ShareAll {
		query = "SELECT COUNT(*) FROM files WHERE owner_id = ?"
		arg = link.OwnerID
	} else {
		query = "SELECT COUNT(*) FROM share_link_files WHERE share_link_id = ?"
		arg = link.ID
	}

	var count int
	if err := db.QueryRowContext(ctx, query, arg).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count share files: %w", err)
	}
	return count, nil
}

// FilePage is one keyset-paginated page of a link's member files.
type FilePage struct {
	Files      []models.File
	TotalCount int
	HasMore    bool
}

// ListShareFiles retrieves one page of a link's member files in the same
// deterministic order the bundle uses. The cursor is the (uploadedAt, id)
// pair of the last row of the previous page.
func (db *DB) ListShareFiles(ctx context.Context, link *models.ShareLink, cursorUploadedAt time.Time, cursorID string, limit int) (*FilePage, error) {
	total, err := db.CountShareFiles(ctx, link)
	if err != nil {
		return nil, err
	}

	var where string
	var args []interface{}
	if link.ShareAll {
		where = "f.owner_id = ?"
		args = append(args, link.OwnerID)
	} else {
		where = "slf.share_link_id = ?"
		args = append(args, link.ID)
	}
	if !cursorUploadedAt.IsZero() {
		where += " AND (f.uploaded_at > ? OR (f.uploaded_at = ? AND f.id > ?))"
		args = append(args, cursorUploadedAt, cursorUploadedAt, cursorID)
	}
	args = append(args, limit+1)

	join := ""
	if !link.ShareAll {
		join = "JOIN share_link_files slf ON slf.file_id = f.id"
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT f.id, f.owner_id, f.original_filename, f.content_type, f.file_size, f.storage_key, f.uploaded_at
		FROM files f %s
		WHERE %s
		ORDER BY f.uploaded_at ASC, f.id ASC
		LIMIT ?
	`, join, where), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list share files: %w", err)
	}
	defer rows.Close()

	files, err := collectFiles(rows)
	if err != nil {
		return nil, err
	}

	page := &FilePage{TotalCount: total}
	if len(files) > limit {
		page.HasMore = true
		files = files[:limit]
	}
	page.Files = files
	return page, nil
}

// Unlock queries

// UpsertUnlock records that a visitor session has supplied the correct
// password for a link. Idempotent per (link, session); racing writers both
// write the same fact, so last-writer-wins is safe.
func (db *DB) UpsertUnlock(ctx context.Context, unlock *models.Unlock) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO share_unlocks (share_link_id, session_id, unlocked_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(share_link_id, session_id) DO UPDATE SET
			unlocked_at = excluded.unlocked_at,
			expires_at = excluded.expires_at
	`, unlock.ShareLinkID, unlock.SessionID, unlock.UnlockedAt, unlock.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert unlock: %w", err)
	}
	return nil
}

// HasValidUnlock reports whether a live unlock exists for (link, session).
func (db *DB) HasValidUnlock(ctx context.Context, linkID, sessionID string, now time.Time) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM share_unlocks
		WHERE share_link_id = ? AND session_id = ? AND expires_at > ?
	`, linkID, sessionID, now).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check unlock: %w", err)
	}
	return n > 0, nil
}

// PurgeExpiredUnlocks drops unlock rows past their expiry.
func (db *DB) PurgeExpiredUnlocks(ctx context.Context, now time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, "DELETE FROM share_unlocks WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired unlocks: %w", err)
	}
	return result.RowsAffected()
}
