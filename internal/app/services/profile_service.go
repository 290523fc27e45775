package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/faeln1/go-contact-groups/internal/app/repositories"
	"github.com/faeln1/go-contact-groups/internal/domain/membership"
	"github.com/faeln1/go-contact-groups/internal/domain/profile"
	"github.com/faeln1/go-contact-groups/pkg/storage"
)

const maxAvatarBytes = 5 << 20

var avatarExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

var ErrStorageUnavailable = errors.New("object storage not configured")

// AvatarUpload is an image to store as the account's avatar.
type AvatarUpload struct {
	ContentType string
	Body        io.Reader
	Size        int64
}

// ProfileService manages account profiles and keeps the contact copies held by
// active memberships in sync with them.
type ProfileService interface {
	Get(ctx context.Context, userID string) (*profile.Profile, error)
	Upsert(ctx context.Context, userID string, in profile.UpsertInput) (*profile.Profile, error)
	UpdateAcrossGroups(ctx context.Context, userID string, patch profile.Patch) (profile.Updated, error)
	UploadAvatar(ctx context.Context, userID string, in AvatarUpload) (profile.Updated, error)
}

type profileService struct {
	store   repositories.Store
	objects storage.Service
	log     waLog.Logger
	now     func() time.Time
}

// NewProfileService builds the service; objects may be nil when no bucket is configured.
func NewProfileService(store repositories.Store, objects storage.Service, log waLog.Logger) ProfileService {
	if log == nil {
		log = waLog.Noop
	}
	return &profileService{store: store, objects: objects, log: log, now: time.Now}
}

func (s *profileService) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err, ErrProfileNotFound)
	}
	return p, nil
}

// Upsert creates or replaces the profile. Replacing one also refreshes the
// contact fields of the account's active memberships in the same transaction.
func (s *profileService) Upsert(ctx context.Context, userID string, in profile.UpsertInput) (*profile.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrForbidden
	}
	email := membership.NormalizeEmail(in.Email)
	if email != "" && !validEmail(email) {
		return nil, validationError("email", "email is not a valid address")
	}
	p := &profile.Profile{
		UserID:    userID,
		FirstName: cleanText(in.FirstName),
		LastName:  cleanText(in.LastName),
		Email:     email,
		Phone:     strings.TrimSpace(in.Phone),
		AvatarURL: strings.TrimSpace(in.AvatarURL),
		UpdatedAt: s.now().UTC(),
	}
	err := s.store.WithTx(ctx, func(q repositories.Queries) error {
		_, err := q.GetProfile(ctx, userID)
		existed := err == nil
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		if err := q.UpsertProfile(ctx, p); err != nil {
			return err
		}
		if !existed {
			return nil
		}
		_, err = q.UpdateMembershipsForUser(ctx, userID, profile.Patch{
			FirstName: &p.FirstName,
			LastName:  &p.LastName,
			Phone:     &p.Phone,
			AvatarURL: &p.AvatarURL,
		})
		return err
	})
	if err != nil {
		return nil, mapStoreError(err, ErrProfileNotFound)
	}
	return p, nil
}

func (s *profileService) UpdateAcrossGroups(ctx context.Context, userID string, patch profile.Patch) (profile.Updated, error) {
	var empty profile.Updated
	clean, err := cleanPatch(patch)
	if err != nil {
		return empty, err
	}
	var out profile.Updated
	err = s.store.WithTx(ctx, func(q repositories.Queries) error {
		p, err := q.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		if clean.Empty() {
			out.Profile = *p
			return nil
		}
		clean.Apply(p)
		p.UpdatedAt = s.now().UTC()
		if err := q.UpdateProfile(ctx, p); err != nil {
			return err
		}
		n, err := q.UpdateMembershipsForUser(ctx, userID, clean)
		if err != nil {
			return err
		}
		out = profile.Updated{Profile: *p, MembershipsUpdated: n}
		return nil
	})
	if err != nil {
		return empty, mapStoreError(err, ErrProfileNotFound)
	}
	if out.MembershipsUpdated > 0 {
		s.log.Debugf("profile %s propagated to %d memberships", userID, out.MembershipsUpdated)
	}
	return out, nil
}

func (s *profileService) UploadAvatar(ctx context.Context, userID string, in AvatarUpload) (profile.Updated, error) {
	var empty profile.Updated
	if s.objects == nil {
		return empty, ErrStorageUnavailable
	}
	ext, ok := avatarExtensions[strings.ToLower(strings.TrimSpace(in.ContentType))]
	if !ok {
		return empty, validationError("file", "avatar must be a png, jpeg or webp image")
	}
	if in.Body == nil || in.Size <= 0 {
		return empty, validationError("file", "avatar is empty")
	}
	if in.Size > maxAvatarBytes {
		return empty, validationError("file", "avatar exceeds 5MB")
	}
	// no orphan objects for unknown accounts
	if _, err := s.Get(ctx, userID); err != nil {
		return empty, err
	}

	key := storage.AvatarKey(userID, ext)
	url, err := s.objects.PutObject(ctx, storage.UploadInput{
		Key:          key,
		ContentType:  in.ContentType,
		CacheControl: storage.ImmutableCacheControl,
		Metadata:     map[string]string{"owner": userID},
		Body:         in.Body,
		Size:         in.Size,
	})
	if err != nil {
		return empty, fmt.Errorf("upload avatar: %w", err)
	}
	out, err := s.UpdateAcrossGroups(ctx, userID, profile.Patch{AvatarURL: &url})
	if err != nil {
		if delErr := s.objects.DeleteObject(ctx, key); delErr != nil {
			s.log.Warnf("failed to remove avatar %s after profile update error: %v", key, delErr)
		}
		return empty, err
	}
	s.log.Infof("avatar updated for %s", userID)
	return out, nil
}

// cleanPatch sanitizes the text fields; names may change but not become blank.
func cleanPatch(p profile.Patch) (profile.Patch, error) {
	var out profile.Patch
	if p.FirstName != nil {
		v := cleanText(*p.FirstName)
		if v == "" {
			return out, validationError("firstName", "firstName cannot be blank")
		}
		out.FirstName = &v
	}
	if p.LastName != nil {
		v := cleanText(*p.LastName)
		if v == "" {
			return out, validationError("lastName", "lastName cannot be blank")
		}
		out.LastName = &v
	}
	if p.Phone != nil {
		v := strings.TrimSpace(*p.Phone)
		out.Phone = &v
	}
	if p.AvatarURL != nil {
		v := strings.TrimSpace(*p.AvatarURL)
		out.AvatarURL = &v
	}
	return out, nil
}
