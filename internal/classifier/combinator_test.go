package classifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/reference"
)

func failing(err error) Classifier {
	return Func(func(context.Context, []association.Fixture, []reference.Row) (Result, error) {
		return Result{}, err
	})
}

func TestWithFallback_UsesPrimaryOnSuccess(t *testing.T) {
	want := Result{
		Summary:            map[string]Group{"Lights01": {Count: 2, Description: "from service", Symbols: []string{"EXIT"}}},
		DetailedDetections: []Detection{{Symbol: "EXIT"}, {Symbol: "EXIT"}},
	}
	primary := Func(func(context.Context, []association.Fixture, []reference.Row) (Result, error) {
		return want, nil
	})
	got, err := WithFallback(primary, Fallback{}).Classify(context.Background(), exitFixtures(), nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWithFallback_FallsBackOnAnyError(t *testing.T) {
	fixtures := exitFixtures()
	direct, err := Fallback{}.Classify(context.Background(), fixtures, nil)
	require.NoError(t, err)

	for _, cause := range []error{
		ErrNoCredential,
		&StatusError{StatusCode: 502},
		context.DeadlineExceeded,
		errors.New("connection reset"),
	} {
		got, err := WithFallback(failing(cause), Fallback{}).Classify(context.Background(), fixtures, nil)
		require.NoError(t, err)
		assert.Equal(t, direct, got, "cause %v", cause)
	}
}

func TestWithFallback_ServiceTimeoutMatchesFallbackCounts(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 30 * time.Millisecond
	fixtures := append(exitFixtures(), fixture(association.TypeWallpack, "", "W1"))

	got, err := WithFallback(NewLLM(cfg), Fallback{}).Classify(context.Background(), fixtures, nil)
	require.NoError(t, err)
	direct, _ := Fallback{}.Classify(context.Background(), fixtures, nil)

	assert.Equal(t, direct.TotalCount(), got.TotalCount())
	assert.Len(t, got.DetailedDetections, len(fixtures))
	assert.Equal(t, len(fixtures), got.TotalCount())
}

func TestWithFallback_CancelledCallerStillGetsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := Func(func(ctx context.Context, _ []association.Fixture, _ []reference.Row) (Result, error) {
		return Result{}, ctx.Err()
	})
	got, err := WithFallback(primary, Fallback{}).Classify(ctx, exitFixtures(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalCount())
}

func TestWithFallback_NilPrimary(t *testing.T) {
	got, err := WithFallback(nil, Fallback{}).Classify(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, EmptyResult(), got)
}

func TestNew(t *testing.T) {
	assert.IsType(t, Fallback{}, New(Config{Provider: ProviderFallback}))

	// Without a key the combined classifier never touches the network.
	c := New(DefaultConfig())
	got, err := c.Classify(context.Background(), exitFixtures(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalCount())
}

func TestFallbackReason(t *testing.T) {
	assert.Equal(t, "none", FallbackReason(nil))
	assert.Equal(t, "no_credential", FallbackReason(ErrNoCredential))
	assert.Equal(t, "canceled", FallbackReason(context.Canceled))
	assert.Equal(t, "invalid_response", FallbackReason(ErrInvalidResponse))
	assert.Equal(t, "error", FallbackReason(errors.New("x")))
}
