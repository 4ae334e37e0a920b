package sigel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/victor-cakess/hometown/internal/domain"
	"github.com/victor-cakess/hometown/internal/observability"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"

	pageBody = `{"features":[` +
		`{"attributes":{"CEG":"EOL.CV.RN.000001-1","POT_MW":2.1,"DATA_ATUALIZACAO":1700000000000},"geometry":{"x":-36.5,"y":-5.2}},` +
		`{"attributes":{"CEG":"EOL.CV.RN.000002-1","POT_MW":3.4,"DATA_ATUALIZACAO":1710000000000},"geometry":{"x":-36.6,"y":-5.3}}` +
		`]}`
)

func testClient(baseURL string, maxRetries int) *Client {
	return &Client{
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		maxRetries:    maxRetries,
		retryDelay:    time.Millisecond,
		maxRetryDelay: 4 * time.Millisecond,
		maxBody:       maxBodyBytes,
		metrics:       observability.NewMetricsForTesting(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set(headerContentType, contentTypeJSON)
	_, _ = io.WriteString(w, body)
}

func TestClient_Count_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("returnCountOnly"))
		assert.Equal(t, "1=1", q.Get("where"))
		assert.Equal(t, "*", q.Get("outFields"))
		assert.Equal(t, "json", q.Get("f"))
		assert.Equal(t, "true", q.Get("returnGeometry"))
		assert.Equal(t, "esriSpatialRelIntersects", q.Get("spatialRel"))
		writeJSON(w, `{"count":23517}`)
	}))
	defer srv.Close()

	n, err := testClient(srv.URL, 3).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(23517), n)
}

func TestClient_Count_MissingCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"features":[]}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 3).Count(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestClient_Page_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2000", r.URL.Query().Get("resultOffset"))
		assert.Equal(t, "1000", r.URL.Query().Get("resultRecordCount"))
		assert.Empty(t, r.URL.Query().Get("returnCountOnly"))
		writeJSON(w, pageBody)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)
	page, err := c.Page(context.Background(), 2000, 1000)
	require.NoError(t, err)

	require.Len(t, page.Features, 2)
	assert.Equal(t, []string{"CEG", "POT_MW", "DATA_ATUALIZACAO"}, page.Features[0].Attributes.Keys)
	lon, lat, ok := page.Features[1].Geometry.Point()
	require.True(t, ok)
	assert.Equal(t, -36.6, lon)
	assert.Equal(t, -5.3, lat)
	assert.JSONEq(t, pageBody, string(page.Raw))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.PagesFetched))
}

func TestClient_Sample_UsesFirstRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0", r.URL.Query().Get("resultOffset"))
		assert.Equal(t, "10", r.URL.Query().Get("resultRecordCount"))
		writeJSON(w, pageBody)
	}))
	defer srv.Close()

	page, err := testClient(srv.URL, 3).Sample(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1710000000000), domain.LatestUpdate(page.Features))
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, `{"count":5}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)
	n, err := c.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(c.metrics.FetchRetries))
}

func TestClient_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 3).Page(context.Background(), 0, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConnection))
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ServiceErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, `{"error":{"code":500,"message":"Unable to complete operation.","details":[]}}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 2).Count(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConnection))
	assert.Contains(t, err.Error(), "Unable to complete operation.")
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_MalformedBodyIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, `{"features":[`)
			return
		}
		writeJSON(w, pageBody)
	}))
	defer srv.Close()

	page, err := testClient(srv.URL, 3).Page(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, page.Features, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ValidationFailureNotRetried(t *testing.T) {
	cases := map[string]string{
		"no features":   `{"fields":[]}`,
		"no geometry":   `{"features":[{"attributes":{"CEG":"x"}}]}`,
		"no attributes": `{"features":[{"geometry":{"x":1,"y":2}}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				writeJSON(w, body)
			}))
			defer srv.Close()

			_, err := testClient(srv.URL, 3).Page(context.Background(), 0, 10)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestClient_EmptyPageIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"features":[]}`)
	}))
	defer srv.Close()

	page, err := testClient(srv.URL, 3).Page(context.Background(), 5000, 1000)
	require.NoError(t, err)
	assert.Empty(t, page.Features)
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5)
	c.retryDelay = time.Minute
	c.maxRetryDelay = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Count(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := testClient(url, 2).Count(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConnection))
}

func TestClient_OversizedBodyNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, pageBody)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)
	c.maxBody = int64(len(pageBody)) - 1

	_, err := c.Page(context.Background(), 0, 10)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "exceeds")
	assert.Equal(t, int32(1), calls.Load())

	c.maxBody = int64(len(pageBody))
	page, err := c.Page(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, page.Features, 2)
}
