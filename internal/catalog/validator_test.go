package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digital-menu/ordering-service/internal/breaker"
	"github.com/digital-menu/ordering-service/internal/catalog"
)

func newValidator(t *testing.T, handler http.HandlerFunc) (*catalog.Validator, *breaker.Breaker) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b := breaker.New("catalog", 3, time.Minute)
	client := catalog.NewClient(srv.URL, 2*time.Second)
	return catalog.NewValidator(client, b), b
}

func TestValidator_AllAvailable(t *testing.T) {
	v, _ := newValidator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "p1,p2", r.URL.Query().Get("ids"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"p1":{"available":true},"p2":{"available":true}}`))
	})

	result := v.Validate(context.Background(), []string{"p1", "p2"})

	assert.True(t, result.AllAvailable)
	assert.False(t, result.Degraded)
	assert.Empty(t, result.Unavailable)
}

func TestValidator_ReportsUnavailableAndMissing(t *testing.T) {
	v, _ := newValidator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"p1":{"available":true},"p2":{"available":false}}`))
	})

	// p3 is absent from the response, which counts as unavailable.
	result := v.Validate(context.Background(), []string{"p1", "p2", "p3"})

	assert.False(t, result.AllAvailable)
	assert.False(t, result.Degraded)
	assert.Equal(t, []string{"p2", "p3"}, result.Unavailable)
}

func TestValidator_DegradedOnNon200(t *testing.T) {
	v, _ := newValidator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	result := v.Validate(context.Background(), []string{"p1"})

	assert.True(t, result.Degraded)
	assert.False(t, result.AllAvailable)
	assert.Empty(t, result.Unavailable)
}

func TestValidator_DegradedOnTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	b := breaker.New("catalog", 3, time.Minute)
	v := catalog.NewValidator(catalog.NewClient(srv.URL, time.Second), b)

	result := v.Validate(context.Background(), []string{"p1"})

	assert.True(t, result.Degraded)
}

func TestValidator_DegradedOnTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(slow.Close)

	b := breaker.New("catalog", 3, time.Minute)
	v := catalog.NewValidator(catalog.NewClient(slow.URL, 50*time.Millisecond), b)

	result := v.Validate(context.Background(), []string{"p1"})

	assert.True(t, result.Degraded)
	assert.Equal(t, 1, b.Failures())
}

func TestValidator_DegradedWhenCircuitOpen(t *testing.T) {
	calls := 0
	v, b := newValidator(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 3; i++ {
		result := v.Validate(context.Background(), []string{"p1"})
		require.True(t, result.Degraded)
	}
	require.Equal(t, breaker.StateOpen, b.State())

	// Circuit is open: degraded without reaching the catalog.
	result := v.Validate(context.Background(), []string{"p1"})
	assert.True(t, result.Degraded)
	assert.Equal(t, 3, calls)
}

func TestValidator_EmptyBatchSkipsRemoteCall(t *testing.T) {
	calls := 0
	v, _ := newValidator(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	result := v.Validate(context.Background(), nil)

	assert.True(t, result.AllAvailable)
	assert.Zero(t, calls)
}
