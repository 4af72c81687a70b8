package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/juju/ratelimit"
	"golang.org/x/crypto/bcrypt"

	"github.com/RaUnAkKS/fileshare/internal/config"
	"github.com/RaUnAkKS/fileshare/internal/database"
	"github.com/RaUnAkKS/fileshare/internal/models"
)

// Share engine errors. ErrForbidden deliberately covers wrong password,
// missing link and no-password-set alike, so unlock responses do not reveal
// whether a link exists.
var (
	ErrLinkNotFound    = errors.New("share link not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrGateClosed      = errors.New("share link is not available for download")
	ErrTooManyAttempts = errors.New("too many unlock attempts")
)

// UnlockLimiter throttles password attempts. The policy is a deployment
// parameter; the engine only requires that something implements it.
type UnlockLimiter interface {
	// Allow reports whether one more attempt for the given key may proceed.
	Allow(key string) bool
}

// bucketLimiter is the default UnlockLimiter: one token bucket per key,
// refilled at a fixed rate.
type bucketLimiter struct {
	mu      sync.Mutex
	buckets map[string]*ratelimit.Bucket
	rate    float64 // tokens per second
	burst   int64
}

// NewUnlockLimiter creates the default token-bucket unlock limiter allowing
// perMinute sustained attempts with the given burst.
func NewUnlockLimiter(perMinute, burst int) UnlockLimiter {
	l := &bucketLimiter{
		buckets: make(map[string]*ratelimit.Bucket),
		rate:    float64(perMinute) / 60.0,
		burst:   int64(burst),
	}
	go l.cleanup()
	return l
}

func (l *bucketLimiter) Allow(key string) bool {
	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = ratelimit.NewBucketWithRate(l.rate, l.burst)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	return bucket.TakeAvailable(1) == 1
}

func (l *bucketLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		for key, bucket := range l.buckets {
			// A full bucket has seen no attempts for a while.
			if bucket.Available() >= l.burst {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}

// ShareService is the share-link access-control and lifecycle engine. All
// gating decisions are recomputed from the persisted record at call time;
// the only synchronization point is the conditional download-count update
// in the data layer.
type ShareService struct {
	db      *database.DB
	cfg     *config.Config
	limiter UnlockLimiter
	now     func() time.Time
}

// NewShareService creates the engine with the default unlock limiter.
func NewShareService(db *database.DB, cfg *config.Config) *ShareService {
	return &ShareService{
		db:      db,
		cfg:     cfg,
		limiter: NewUnlockLimiter(cfg.Share.UnlockRatePerMin, cfg.Share.UnlockBurst),
		now:     time.Now,
	}
}

// SetUnlockLimiter replaces the unlock rate-limit policy.
func (s *ShareService) SetUnlockLimiter(l UnlockLimiter) {
	s.limiter = l
}

// CreateLinkInput carries the creation parameters. FileIDs and ShareAll are
// mutually exclusive.
type CreateLinkInput struct {
	FileIDs      []string
	ShareAll     bool
	Password     string
	MaxDownloads *int
	ExpiresAt    *time.Time
}

// Create validates the input and persists a new share link owned by ownerID.
// Every referenced file must belong to the owner; a single foreign id fails
// the whole call rather than silently dropping files.
func (s *ShareService) Create(ctx context.Context, ownerID int64, input CreateLinkInput) (*models.ShareLink, error) {
	if input.ShareAll && len(input.FileIDs) > 0 {
		return nil, fmt.Errorf("%w: share_all and files are mutually exclusive", ErrInvalidArgument)
	}
	if !input.ShareAll && len(input.FileIDs) == 0 {
		return nil, fmt.Errorf("%w: either share_all or a non-empty files list is required", ErrInvalidArgument)
	}
	if input.MaxDownloads != nil && *input.MaxDownloads <= 0 {
		return nil, fmt.Errorf("%w: max_downloads must be a positive integer", ErrInvalidArgument)
	}

	now := s.now().UTC()
	if input.ExpiresAt != nil {
		if !input.ExpiresAt.After(now) {
			return nil, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidArgument)
		}
		// Stored timestamps compare as strings, so everything goes in as UTC.
		u := input.ExpiresAt.UTC()
		input.ExpiresAt = &u
	}

	if !input.ShareAll {
		owned, err := s.db.CountFilesOwnedOf(ctx, ownerID, uniqueStrings(input.FileIDs))
		if err != nil {
			return nil, err
		}
		if owned != len(uniqueStrings(input.FileIDs)) {
			return nil, fmt.Errorf("%w: one or more files are not owned by the requester", ErrForbidden)
		}
	}

	var passwordHash *string
	if input.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cfg.Security.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash share password: %w", err)
		}
		h := string(hash)
		passwordHash = &h
	}

	link := &models.ShareLink{
		OwnerID:      ownerID,
		ShareAll:     input.ShareAll,
		PasswordHash: passwordHash,
		MaxDownloads: input.MaxDownloads,
		ExpiresAt:    input.ExpiresAt,
		IsActive:     true,
		CreatedAt:    now,
	}

	// Ids are generated from crypto/rand; a collision with any id ever
	// issued (deleted links included) forces a retry rather than a reuse.
	for attempt := 0; ; attempt++ {
		id, err := newID()
		if err != nil {
			return nil, err
		}
		exists, err := s.db.ShareLinkIDExists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			link.ID = id
			break
		}
		if attempt >= 4 {
			return nil, errors.New("failed to allocate a unique share link id")
		}
	}

	if err := s.db.CreateShareLink(ctx, link, uniqueStrings(input.FileIDs)); err != nil {
		return nil, err
	}

	count, err := s.db.CountShareFiles(ctx, link)
	if err != nil {
		return nil, err
	}
	link.FileCount = count
	return link, nil
}

// LinkStatus is the public view of a link's gating state.
type LinkStatus struct {
	Status      string `json:"status"`
	HasPassword bool   `json:"has_password"`
	IsUnlocked  bool   `json:"is_unlocked"`
}

// Status computes the link state fresh. Deleted and never-existed ids are
// both reported as ErrLinkNotFound so response behavior does not leak
// deletion timing.
func (s *ShareService) Status(ctx context.Context, linkID, sessionID string) (*LinkStatus, error) {
	link, err := s.db.GetShareLink(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrLinkNotFound
	}

	status := &LinkStatus{
		Status:      link.Status(s.now()),
		HasPassword: link.HasPassword(),
	}

	if status.HasPassword && sessionID != "" {
		unlocked, err := s.db.HasValidUnlock(ctx, linkID, sessionID, s.now().UTC())
		if err != nil {
			return nil, err
		}
		status.IsUnlocked = unlocked
	}

	return status, nil
}

// Unlock verifies a password attempt and records the unlock for the session.
// Wrong password, unknown link and passwordless link all return ErrForbidden.
func (s *ShareService) Unlock(ctx context.Context, linkID, sessionID, password string) error {
	if !s.limiter.Allow(sessionID + ":" + linkID) {
		return ErrTooManyAttempts
	}

	link, err := s.db.GetShareLink(ctx, linkID)
	if err != nil {
		return err
	}
	if link == nil || !link.HasPassword() {
		return ErrForbidden
	}

	// bcrypt comparison is constant time over the supplied password.
	if bcrypt.CompareHashAndPassword([]byte(*link.PasswordHash), []byte(password)) != nil {
		return ErrForbidden
	}

	return s.recordUnlock(ctx, link, sessionID)
}

func (s *ShareService) recordUnlock(ctx context.Context, link *models.ShareLink, sessionID string) error {
	now := s.now().UTC()
	expires := now.Add(s.cfg.Share.UnlockTTL)
	// The unlock must not outlive the link itself.
	if link.ExpiresAt != nil && link.ExpiresAt.Before(expires) {
		expires = *link.ExpiresAt
	}

	return s.db.UpsertUnlock(ctx, &models.Unlock{
		ShareLinkID: link.ID,
		SessionID:   sessionID,
		UnlockedAt:  now,
		ExpiresAt:   expires,
	})
}

// Bundle is a download admitted through the gate: the resolved file set in
// deterministic order, ready for the bundle builder.
type Bundle struct {
	Link  *models.ShareLink
	Files []models.File
}

// RequestDownload re-validates every gating condition at the moment of the
// call and consumes one download slot via the atomic conditional increment.
// Once the increment commits it is never rolled back; a failed transfer
// still counts against the limit.
func (s *ShareService) RequestDownload(ctx context.Context, linkID, sessionID, password string) (*Bundle, error) {
	link, err := s.db.GetShareLink(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrLinkNotFound
	}

	if link.HasPassword() {
		unlocked := false
		if sessionID != "" {
			unlocked, err = s.db.HasValidUnlock(ctx, linkID, sessionID, s.now().UTC())
			if err != nil {
				return nil, err
			}
		}
		if !unlocked {
			// Accept an inline password as a fallback for clients without
			// cookie continuity, under the same rate limit as Unlock.
			if password == "" {
				return nil, ErrForbidden
			}
			if err := s.Unlock(ctx, linkID, sessionID, password); err != nil {
				return nil, err
			}
		}
	}

	// The atomic gate: eligibility check and counter increment in one
	// conditional update. Two concurrent requests at max_downloads-1 cannot
	// both pass.
	ok, err := s.db.TryIncrementDownloadCount(ctx, linkID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrGateClosed
	}

	// File set is resolved after the gate so share_all links reflect the
	// owner's files as of this download.
	files, err := s.db.ResolveShareFiles(ctx, link)
	if err != nil {
		return nil, err
	}

	return &Bundle{Link: link, Files: files}, nil
}

// Get returns a link for its owner, with the live member count.
func (s *ShareService) Get(ctx context.Context, linkID string, ownerID int64) (*models.ShareLink, error) {
	link, err := s.db.GetShareLink(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrLinkNotFound
	}
	if link.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	link.FileCount, err = s.db.CountShareFiles(ctx, link)
	if err != nil {
		return nil, err
	}
	return link, nil
}

// List returns one page of the owner's links, newest first, with live member
// counts. search filters "active"/"inactive".
func (s *ShareService) List(ctx context.Context, ownerID int64, search string, cursorCreatedAt time.Time, cursorID string, limit int) (*database.ShareLinkPage, error) {
	page, err := s.db.ListShareLinks(ctx, ownerID, search, cursorCreatedAt, cursorID, limit)
	if err != nil {
		return nil, err
	}

	for i := range page.Links {
		count, err := s.db.CountShareFiles(ctx, &page.Links[i])
		if err != nil {
			return nil, err
		}
		page.Links[i].FileCount = count
	}
	return page, nil
}

// Files returns one page of a link's member files for its owner.
func (s *ShareService) Files(ctx context.Context, linkID string, ownerID int64, cursorUploadedAt time.Time, cursorID string, limit int) (*database.FilePage, error) {
	link, err := s.db.GetShareLink(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrLinkNotFound
	}
	if link.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	return s.db.ListShareFiles(ctx, link, cursorUploadedAt, cursorID, limit)
}

// SetActive flips the owner kill switch. Deactivating also drops every
// unlock session for the link.
func (s *ShareService) SetActive(ctx context.Context, linkID string, ownerID int64, active bool) error {
	link, err := s.db.GetShareLink(ctx, linkID)
	if err != nil {
		return err
	}
	if link == nil {
		return ErrLinkNotFound
	}
	if link.OwnerID != ownerID {
		return ErrForbidden
	}

	return s.db.SetShareLinkActive(ctx, linkID, active)
}

// Delete permanently removes a link. The id stays reserved forever and all
// in-flight access is invalidated: subsequent status and download calls see
// not-found with no servable window.
func (s *ShareService) Delete(ctx context.Context, linkID string, ownerID int64) error {
	link, err := s.db.GetShareLink(ctx, linkID)
	if err != nil {
		return err
	}
	if link == nil {
		return ErrLinkNotFound
	}
	if link.OwnerID != ownerID {
		return ErrForbidden
	}

	return s.db.SoftDeleteShareLink(ctx, linkID)
}

// PurgeExpiredUnlocks drops stale unlock sessions; called periodically.
func (s *ShareService) PurgeExpiredUnlocks(ctx context.Context) (int64, error) {
	return s.db.PurgeExpiredUnlocks(ctx, s.now().UTC())
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
