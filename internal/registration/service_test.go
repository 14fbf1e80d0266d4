package registration

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smiletrip/smilecoin/internal/domain"
	apperrors "github.com/smiletrip/smilecoin/internal/errors"
	"github.com/smiletrip/smilecoin/internal/usercache"
)

type fakeUsers struct {
	nextID    int64
	createErr error
	byID      map[int64]*domain.User
	findCalls int
}

func (f *fakeUsers) FindByID(_ context.Context, id int64) (*domain.User, error) {
	f.findCalls++
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUsers) FindByWallet(context.Context, string) (*domain.User, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeUsers) Create(_ context.Context, user *domain.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	user.ID = f.nextID
	if f.byID == nil {
		f.byID = make(map[int64]*domain.User)
	}
	f.byID[user.ID] = user
	return nil
}

type fakeRestaurants struct {
	nextID    int64
	createErr error
}

func (f *fakeRestaurants) FindByID(context.Context, int64) (*domain.Restaurant, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeRestaurants) Create(_ context.Context, restaurant *domain.Restaurant) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	restaurant.ID = f.nextID
	return nil
}

func (f *fakeRestaurants) ListAll(context.Context) ([]domain.Restaurant, error) {
	return nil, nil
}

func (f *fakeRestaurants) RankOf(context.Context, int64) (int, int, error) {
	return 0, 0, nil
}

func newTestService(t *testing.T, users *fakeUsers, restaurants *fakeRestaurants) *Service {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewService(users, restaurants, usercache.NewCache(client),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func validUserInput() UserInput {
	return UserInput{
		OriginCountry: "JP",
		ArrivalDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		DepartureDate: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		WalletAddress: "0xabc",
	}
}

func TestRegisterUser(t *testing.T) {
	svc := newTestService(t, &fakeUsers{}, &fakeRestaurants{})

	user, err := svc.RegisterUser(context.Background(), validUserInput())
	require.NoError(t, err)

	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "JP", user.OriginCountry)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), user.ArrivalDate)
	assert.False(t, user.CreatedAt.IsZero())
}

func TestRegisterUser_TruncatesTripWindowToDays(t *testing.T) {
	svc := newTestService(t, &fakeUsers{}, &fakeRestaurants{})

	input := validUserInput()
	input.ArrivalDate = time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	input.DepartureDate = time.Date(2026, 3, 4, 6, 0, 0, 0, time.UTC)

	user, err := svc.RegisterUser(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), user.ArrivalDate)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), user.DepartureDate)
}

func TestRegisterUser_RejectsInvertedWindow(t *testing.T) {
	svc := newTestService(t, &fakeUsers{}, &fakeRestaurants{})

	input := validUserInput()
	input.DepartureDate = input.ArrivalDate

	_, err := svc.RegisterUser(context.Background(), input)
	assert.True(t, apperrors.IsValidation(err))
}

func TestRegisterUser_DuplicateWallet(t *testing.T) {
	users := &fakeUsers{createErr: &pq.Error{Code: "23505"}}
	svc := newTestService(t, users, &fakeRestaurants{})

	_, err := svc.RegisterUser(context.Background(), validUserInput())
	assert.True(t, apperrors.IsConflict(err))
}

func TestRegisterRestaurant(t *testing.T) {
	svc := newTestService(t, &fakeUsers{}, &fakeRestaurants{})

	restaurant, err := svc.RegisterRestaurant(context.Background(), RestaurantInput{
		PlaceRef:      "place-1",
		Name:          "Noodle House",
		Lat:           13.7563,
		Lng:           100.5018,
		WalletAddress: "0xrest",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), restaurant.ID)
	assert.Equal(t, "Noodle House", restaurant.Name)
}

func TestRegisterRestaurant_RejectsBadCoordinates(t *testing.T) {
	svc := newTestService(t, &fakeUsers{}, &fakeRestaurants{})

	_, err := svc.RegisterRestaurant(context.Background(), RestaurantInput{
		PlaceRef:      "place-1",
		Name:          "Nowhere",
		Lat:           91,
		Lng:           0,
		WalletAddress: "0xrest",
	})
	assert.True(t, apperrors.IsValidation(err))
}

func TestGetUser_ReadThroughCache(t *testing.T) {
	users := &fakeUsers{}
	svc := newTestService(t, users, &fakeRestaurants{})
	ctx := context.Background()

	created, err := svc.RegisterUser(ctx, validUserInput())
	require.NoError(t, err)

	// Registration primed the cache, so the lookup never hits the repo.
	got, err := svc.GetUser(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, 0, users.findCalls)
}

func TestGetUser_FallsBackToDatabase(t *testing.T) {
	users := &fakeUsers{byID: map[int64]*domain.User{
		7: {ID: 7, OriginCountry: "KR", WalletAddress: "0xkr"},
	}}
	svc := newTestService(t, users, &fakeRestaurants{})
	ctx := context.Background()

	got, err := svc.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "KR", got.OriginCountry)
	assert.Equal(t, 1, users.findCalls)

	// Second lookup is served from cache.
	_, err = svc.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, users.findCalls)
}

func TestGetUser_Unknown(t *testing.T) {
	svc := newTestService(t, &fakeUsers{}, &fakeRestaurants{})

	_, err := svc.GetUser(context.Background(), 42)
	assert.True(t, apperrors.IsNotFound(err))
}
