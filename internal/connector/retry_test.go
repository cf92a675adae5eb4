package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"trunk-connector/internal/media"
	"trunk-connector/internal/store"
	"trunk-connector/internal/telephony"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/twitchtv/twirp"
)

func testRetrier(attempts int) retrier {
	return retrier{
		policy: RetryPolicy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		log:    slog.Default(),
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"carrier 503", &telephony.APIError{Status: 503}, true},
		{"carrier 429", &telephony.APIError{Status: 429}, true},
		{"carrier transport", &telephony.APIError{Err: errors.New("reset")}, true},
		{"carrier 400", &telephony.APIError{Status: 400}, false},
		{"missing number", fmt.Errorf("x: %w", telephony.ErrPhoneNumberNotFound), false},
		{"media unavailable", &media.APIError{Code: twirp.Unavailable}, true},
		{"media invalid", &media.APIError{Code: twirp.InvalidArgument}, false},
		{"media already exists", &media.APIError{Code: twirp.AlreadyExists}, false},
		{"deadline", context.DeadlineExceeded, false},
		{"canceled", fmt.Errorf("x: %w", context.Canceled), false},
		{"store invalid", store.ErrInvalidArgument, false},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"db connection", errors.New("connection refused"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isTransient(tc.err))
		})
	}
}

func TestRetrier_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := testRetrier(3).do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return &telephony.APIError{Status: 500}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	boom := &media.APIError{Code: twirp.Unavailable, Err: errors.New("down")}
	err := testRetrier(2).do(context.Background(), "op", func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestRetrier_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	err := testRetrier(5).do(context.Background(), "op", func(context.Context) error {
		calls++
		return telephony.ErrPhoneNumberNotFound
	})
	assert.ErrorIs(t, err, telephony.ErrPhoneNumberNotFound)
	assert.Equal(t, 1, calls)
}

func TestRetrier_StopsOnContextEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := testRetrier(10).do(ctx, "op", func(context.Context) error {
		calls++
		cancel()
		return &telephony.APIError{Status: 503}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, KindTimeout, classify(ctx, context.DeadlineExceeded, KindPersistence))
	assert.Equal(t, KindPhoneNumberNotFound, classify(ctx, telephony.ErrPhoneNumberNotFound, KindCarrierAPI))
	assert.Equal(t, KindCarrierAPI, classify(ctx, &telephony.APIError{Status: 500}, KindPersistence))
	assert.Equal(t, KindMediaPlatformAPI, classify(ctx, &media.APIError{}, KindPersistence))
	assert.Equal(t, KindPersistence, classify(ctx, errors.New("db"), KindPersistence))

	done, cancel := context.WithCancel(ctx)
	cancel()
	assert.Equal(t, KindTimeout, classify(done, errors.New("db"), KindPersistence))
}
