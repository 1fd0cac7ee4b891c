package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"datasteward/internal/model"
	"datasteward/internal/pkg/jwtutil"
	"datasteward/internal/realtime"
	"datasteward/internal/repository"
)

const EventKindAuth = "auth"

type UserStore interface {
	Create(user *model.User) error
	GetByUsername(username string) (*model.User, error)
	GetByEmail(email string) (*model.User, error)
	GetByID(id uint) (*model.User, error)
	UpdateProfile(id uint, displayName, avatarURL string) error
}

type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
}

type AuthService struct {
	users         UserStore
	revoker       TokenRevoker
	broker        realtime.Broker
	jwtSecret     string
	jwtExpiration time.Duration
}

type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

type LoginInput struct {
	Username string
	Password string
}

type ProfileInput struct {
	DisplayName string
	AvatarURL   string
}

type AuthResult struct {
	Token string
	User  model.Profile
}

func NewAuthService(users UserStore, revoker TokenRevoker, broker realtime.Broker, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		users:         users,
		revoker:       revoker,
		broker:        broker,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

// AuthTopic is where sign-in state changes for one user are announced.
func AuthTopic(userID uint) string {
	return "auth:" + strconv.FormatUint(uint64(userID), 10)
}

func (s *AuthService) Register(input RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	password := strings.TrimSpace(input.Password)
	displayName := strings.TrimSpace(input.DisplayName)

	if username == "" || email == "" || password == "" || len(password) < 8 {
		return nil, ErrInvalidInput
	}
	if displayName == "" {
		displayName = username
	}

	existingByName, err := s.users.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if existingByName != nil {
		return nil, ErrUsernameExists
	}

	existingByEmail, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existingByEmail != nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(user); err != nil {
		if errors.Is(err, repository.ErrUserConflict) {
			return nil, s.conflictCause(username, email, err)
		}
		return nil, err
	}

	return s.issue(user)
}

// conflictCause names the field a concurrent registration took between the
// pre-checks and the insert.
func (s *AuthService) conflictCause(username, email string, err error) error {
	if u, lookupErr := s.users.GetByUsername(username); lookupErr == nil && u != nil {
		return ErrUsernameExists
	}
	if u, lookupErr := s.users.GetByEmail(email); lookupErr == nil && u != nil {
		return ErrEmailExists
	}
	return err
}

func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	password := strings.TrimSpace(input.Password)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.users.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	return s.issue(user)
}

// Logout revokes the presented token and tells every live session of the
// user that it is signed out. A failed broadcast does not undo the logout.
func (s *AuthService) Logout(ctx context.Context, claims *jwtutil.Claims) error {
	if claims == nil || claims.UserID == 0 {
		return ErrAuthRequired
	}

	if s.revoker != nil {
		if err := s.revoker.Revoke(ctx, claims.ID, claims.TTL()); err != nil {
			return err
		}
	}

	if s.broker != nil {
		err := s.broker.Publish(ctx, realtime.Event{
			Topic:   AuthTopic(claims.UserID),
			Kind:    EventKindAuth,
			Payload: json.RawMessage(`{"user":null}`),
			UserID:  strconv.FormatUint(uint64(claims.UserID), 10),
		})
		if err != nil {
			log.Printf("publish sign-out failed, user=%d: %v", claims.UserID, err)
		}
	}
	return nil
}

func (s *AuthService) CurrentUser(userID uint) (model.Profile, error) {
	if userID == 0 {
		return model.Profile{}, ErrAuthRequired
	}
	user, err := s.users.GetByID(userID)
	if err != nil {
		return model.Profile{}, err
	}
	if user == nil {
		return model.Profile{}, ErrAuthRequired
	}
	return user.Profile(), nil
}

func (s *AuthService) UpdateProfile(userID uint, input ProfileInput) (model.Profile, error) {
	displayName := strings.TrimSpace(input.DisplayName)
	avatarURL := strings.TrimSpace(input.AvatarURL)
	if displayName == "" || len(displayName) > 128 || len(avatarURL) > 512 {
		return model.Profile{}, ErrInvalidInput
	}

	current, err := s.users.GetByID(userID)
	if err != nil {
		return model.Profile{}, err
	}
	if current == nil {
		return model.Profile{}, ErrAuthRequired
	}

	if err := s.users.UpdateProfile(userID, displayName, avatarURL); err != nil {
		return model.Profile{}, err
	}
	current.DisplayName = displayName
	current.AvatarURL = avatarURL
	return current.Profile(), nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user.Profile()}, nil
}
