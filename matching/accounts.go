package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"gitea.kood.tech/petrkubec/purpose-match/backend/store"
)

const (
	MsgRegistered     = "User registered successfully!"
	MsgLoggedIn       = "Login successful!"
	MsgProfileSaved   = "Profile updated successfully."
	MsgPurposeCreated = "Purpose created successfully!"
)

// ProfileView is a profile together with its owner's username.
type ProfileView struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Bio      string `json:"bio"`
	ImageURL string `json:"profile_image_url"`
}

// ProfileUpdate replaces the profile fields. A non-empty Username renames
// the user first.
type ProfileUpdate struct {
	Username string
	Bio      string
	ImageURL string
}

// transactor is implemented by stores that can run several writes
// atomically.
type transactor interface {
	InTx(ctx context.Context, fn func(store.Store) error) error
}

func (s *Service) inTx(ctx context.Context, fn func(store.Store) error) error {
	if tx, ok := s.store.(transactor); ok {
		return tx.InTx(ctx, fn)
	}
	return fn(s.store)
}

func (s *Service) Register(ctx context.Context, username, password string) (store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return store.User{}, invalid("Username and password are required.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.store.CreateUser(ctx, username, string(hash))
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.User{}, newError(ErrConflict, "User already exists.")
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	s.log.Info(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// Authenticate checks the credentials. Unknown users and wrong passwords
// fail the same way.
func (s *Service) Authenticate(ctx context.Context, username, password string) (store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return store.User{}, invalid("Username and password are required.")
	}

	u, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, newError(ErrUnauthorized, "Invalid username or password.")
		}
		return store.User{}, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return store.User{}, newError(ErrUnauthorized, "Invalid username or password.")
	}
	return u, nil
}

func (s *Service) SaveProfile(ctx context.Context, p store.Profile) (store.Profile, error) {
	if p.UserID <= 0 {
		return store.Profile{}, invalid("User ID is required.")
	}
	saved, err := s.store.UpsertProfile(ctx, p)
	if err != nil {
		return store.Profile{}, notFound(fmt.Errorf("save profile: %w", err), "User not found.")
	}
	return saved, nil
}

func (s *Service) Profile(ctx context.Context, userID int64) (ProfileView, error) {
	if userID <= 0 {
		return ProfileView{}, invalid("User ID is required.")
	}
	p, err := s.store.ProfileByUserID(ctx, userID)
	if err != nil {
		return ProfileView{}, notFound(fmt.Errorf("load profile: %w", err), "Profile not found.")
	}
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return ProfileView{}, notFound(fmt.Errorf("load user: %w", err), "Profile not found.")
	}
	return ProfileView{UserID: userID, Username: u.Username, Bio: p.Bio, ImageURL: p.ImageURL}, nil
}

// UpdateProfile renames the user when upd.Username is set, then overwrites
// the profile. Both writes share a transaction when the store supports it.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, upd ProfileUpdate) (ProfileView, error) {
	if userID <= 0 {
		return ProfileView{}, invalid("User ID is required.")
	}
	upd.Username = strings.TrimSpace(upd.Username)

	err := s.inTx(ctx, func(st store.Store) error {
		if upd.Username != "" {
			if err := st.RenameUser(ctx, userID, upd.Username); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return newError(ErrConflict, "Username already taken.")
				}
				return notFound(fmt.Errorf("rename user: %w", err), "User not found.")
			}
		}
		_, err := st.UpsertProfile(ctx, store.Profile{UserID: userID, Bio: upd.Bio, ImageURL: upd.ImageURL})
		return notFound(err, "User not found.")
	})
	if err != nil {
		return ProfileView{}, err
	}
	return s.Profile(ctx, userID)
}

func (s *Service) CreatePurpose(ctx context.Context, ownerID int64, title, description string) (store.Purpose, error) {
	title, description = strings.TrimSpace(title), strings.TrimSpace(description)
	if ownerID <= 0 {
		return store.Purpose{}, newError(ErrUnauthorized, "Unauthorized.")
	}
	if title == "" || description == "" {
		return store.Purpose{}, invalid("Title and description are required.")
	}
	p, err := s.store.CreatePurpose(ctx, store.Purpose{OwnerID: ownerID, Title: title, Description: description})
	if err != nil {
		return store.Purpose{}, notFound(fmt.Errorf("create purpose: %w", err), "User not found.")
	}
	return p, nil
}
