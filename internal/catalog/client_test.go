package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digital-menu/ordering-service/internal/catalog"
)

func TestClient_TimeoutIsPerClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(80 * time.Millisecond)
		w.Write([]byte(`{"results": [{"id": "ext-p1", "name": "Soup", "price": "4.50", "is_available": true}]}`))
	}))
	defer srv.Close()

	t.Run("short_timeout_fails_slow_bulk_fetch", func(t *testing.T) {
		c := catalog.NewClient(srv.URL, 20*time.Millisecond)

		_, err := c.FetchProducts(context.Background(), 1000)

		assert.Error(t, err)
	})

	t.Run("generous_timeout_completes_the_same_fetch", func(t *testing.T) {
		c := catalog.NewClient(srv.URL, 2*time.Second)

		records, err := c.FetchProducts(context.Background(), 1000)

		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "ext-p1", records[0].ID)
	})
}
