package official

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/TrackProxy/internal/integrations/upstream"
	"github.com/BearBump/TrackProxy/internal/models"
	"github.com/stretchr/testify/require"
)

func TestClient_Query_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/edi/pubTracking", r.URL.Path)
		require.Equal(t, "cbel.pgs-log.com", r.URL.Query().Get("host"))
		require.Equal(t, "false", r.URL.Query().Get("noSubTracking"))
		require.Equal(t, "CBEL123", r.URL.Query().Get("soNum"))
		require.Equal(t, "/public-tracking", r.URL.Query().Get("url"))
		require.Empty(t, r.Header.Get("appKey"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"soNum":"CBEL123","dataList":[]},{"soNum":"other"}]`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL + "/edi/pubTracking"})
	p, err := c.Query(context.Background(), "CBEL123")
	require.NoError(t, err)
	require.Equal(t, models.SourceOfficial, p.Source)
	require.JSONEq(t, `{"soNum":"CBEL123","dataList":[]}`, string(p.Body))
}

func TestClient_Query_EmptyArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL}).Query(context.Background(), "CBEL123")
	require.Error(t, err)
	require.Equal(t, upstream.KindEmpty, upstream.KindOf(err))
}

func TestClient_Query_NotArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":500}`))
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL}).Query(context.Background(), "CBEL123")
	require.Equal(t, upstream.KindMalformed, upstream.KindOf(err))
}

func TestClient_Query_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL}).Query(context.Background(), "CBEL123")
	require.Equal(t, upstream.KindHTTP, upstream.KindOf(err))
	require.True(t, upstream.IsTransport(err))
}

func TestClient_Query_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	started := time.Now()
	_, err := c.Query(context.Background(), "CBEL123")
	require.Equal(t, upstream.KindTimeout, upstream.KindOf(err))
	require.Less(t, time.Since(started), 2*time.Second)
}

type recorder struct {
	outcomes []string
}

func (r *recorder) ObserveUpstream(name, outcome string, d time.Duration) {
	r.outcomes = append(r.outcomes, name+":"+outcome)
}

func TestClient_Query_RecordsOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	rec := &recorder{}
	_, _ = New(Options{BaseURL: srv.URL}).WithRecorder(rec).Query(context.Background(), "CBEL123")
	require.Equal(t, []string{"official:empty"}, rec.outcomes)
}
