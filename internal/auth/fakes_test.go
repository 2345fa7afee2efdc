package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mslate/shortlink/internal/model"
	"github.com/mslate/shortlink/internal/repo"
)

// fakeUserRepo is an in-memory repo.UserRepo for unit tests.
type fakeUserRepo struct {
	users map[uuid.UUID]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	user.ID = uuid.New()
	user.DateJoined = time.Now()
	user.DateUpdated = user.DateJoined
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	if u, ok := f.users[id]; ok {
		return *u, nil
	}
	return model.User{}, repo.ErrNotFound
}

func (f *fakeUserRepo) GetActiveByUsername(_ context.Context, username string) (model.User, error) {
	for _, u := range f.users {
		if u.IsActive && strings.EqualFold(u.Username, username) {
			return *u, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (f *fakeUserRepo) GetActiveByEmail(_ context.Context, email string) (model.User, error) {
	for _, u := range f.users {
		if u.IsActive && strings.EqualFold(u.Email, email) {
			return *u, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (f *fakeUserRepo) Exists(_ context.Context, username, phone, email string) (bool, error) {
	for _, u := range f.users {
		if strings.EqualFold(u.Username, username) ||
			strings.EqualFold(u.Phone, phone) ||
			strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) UpdateLoginState(_ context.Context, id uuid.UUID, attempts int, blockedUntil *time.Time) error {
	u, ok := f.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	u.UnsuccessfulLoginAttempts = attempts
	u.BlockedUntil = blockedUntil
	u.DateUpdated = time.Now()
	return nil
}

// failingOtpRepo simulates a store outage.
type failingOtpRepo struct{}

func (failingOtpRepo) Create(context.Context, *model.UserOTP) error {
	return errors.New("store unavailable")
}

func (failingOtpRepo) GetLatest(context.Context, uuid.UUID, uuid.UUID) (model.UserOTP, error) {
	return model.UserOTP{}, errors.New("store unavailable")
}

// fakeOtpRepo is an in-memory repo.OtpRepo for unit tests.
type fakeOtpRepo struct {
	otps []model.UserOTP
}

func (f *fakeOtpRepo) Create(_ context.Context, otp *model.UserOTP) error {
	otp.CreatedAt = time.Now()
	f.otps = append(f.otps, *otp)
	return nil
}

func (f *fakeOtpRepo) GetLatest(_ context.Context, txnID, userID uuid.UUID) (model.UserOTP, error) {
	var matches []model.UserOTP
	for _, o := range f.otps {
		if o.ID == txnID && o.UserID == userID {
			matches = append(matches, o)
		}
	}
	if len(matches) == 0 {
		return model.UserOTP{}, repo.ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches[0], nil
}
