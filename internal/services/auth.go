package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/RaUnAkKS/fileshare/internal/config"
	"github.com/RaUnAkKS/fileshare/internal/database"
	"github.com/RaUnAkKS/fileshare/internal/models"
)

// Authentication errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrUserExists         = errors.New("email already registered")
	ErrInvalidPassword    = errors.New("password does not meet requirements")
	ErrInvalidUsername    = errors.New("username does not meet requirements")
	ErrInvalidEmail       = errors.New("invalid email address")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// AuthService handles user registration and authentication.
type AuthService struct {
	db         *database.DB
	cfg        *config.Config
	bcryptCost int
}

// NewAuthService creates a new authentication service.
func NewAuthService(db *database.DB, cfg *config.Config) *AuthService {
	return &AuthService{
		db:         db,
		cfg:        cfg,
		bcryptCost: cfg.Security.BcryptCost,
	}
}

// Authenticate verifies user credentials and returns the user if valid.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)

	user, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("authentication error: %w", err)
	}

	// Perform a bcrypt comparison even if the user doesn't exist, so response
	// timing does not reveal which emails are registered.
	if user == nil {
		bcrypt.CompareHashAndPassword([]byte("$2a$12$dummy.hash.to.prevent.timing.attacks"), []byte(password))
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.db.UpdateUserLastLogin(ctx, user.ID); err != nil {
		// Log but don't fail authentication
		fmt.Printf("Warning: failed to update last login: %v\n", err)
	}

	return user, nil
}

// Register creates a new user with validated input.
func (s *AuthService) Register(ctx context.Context, input models.UserCreate) (*models.User, error) {
	if err := s.ValidateUsername(input.Username); err != nil {
		return nil, err
	}
	if err := s.ValidateEmail(input.Email); err != nil {
		return nil, err
	}
	if err := s.ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	existing, err := s.db.GetUserByEmail(ctx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("registration error: %w", err)
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		Username:     strings.TrimSpace(input.Username),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *AuthService) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.db.GetUserByID(ctx, id)
}

// ValidateUsername checks if a username meets requirements.
func (s *AuthService) ValidateUsername(username string) error {
	username = strings.TrimSpace(username)

	if len(username) < 3 {
		return fmt.Errorf("%w: username must be at least 3 characters", ErrInvalidUsername)
	}
	if len(username) > 32 {
		return fmt.Errorf("%w: username must be at most 32 characters", ErrInvalidUsername)
	}

	return nil
}

// ValidateEmail checks if an email is valid.
func (s *AuthService) ValidateEmail(email string) error {
	email = strings.TrimSpace(email)

	if len(email) < 5 || len(email) > 254 {
		return ErrInvalidEmail
	}
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}

	return nil
}

// ValidatePassword checks if a password meets requirements.
func (s *AuthService) ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidPassword)
	}
	if len(password) > 128 {
		return fmt.Errorf("%w: password must be at most 128 characters", ErrInvalidPassword)
	}

	return nil
}
