package httpauth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthTransport_RoundTrip_AddsBearerToken(t *testing.T) {
	var capturedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{Transport: NewAuthTransport(nil, StaticToken("test-token"))}

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "Bearer test-token", capturedAuth)
}

func TestAuthTransport_RoundTrip_NoHeaderWhenTokenEmpty(t *testing.T) {
	var capturedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{Transport: NewAuthTransport(nil, NoAuth())}

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Empty(t, capturedAuth)
}

func TestAuthTransport_RoundTrip_PropagatesTokenFuncError(t *testing.T) {
	client := &http.Client{
		Transport: NewAuthTransport(nil, func() (string, error) {
			return "", errors.New("token fetch failed")
		}),
	}

	_, err := client.Get("http://example.com")
	assert.Error(t, err)
}

func TestAuthTransport_RoundTrip_DefaultsBaseToNil(t *testing.T) {
	transport := NewAuthTransport(nil, StaticToken("token"))
	assert.Nil(t, transport.Base)
}

func TestAuthTransport_RoundTrip_CallsTokenFuncPerRequest(t *testing.T) {
	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{
		Transport: NewAuthTransport(nil, func() (string, error) {
			atomic.AddInt32(&callCount, 1)
			return "token", nil
		}),
	}

	for i := 0; i < 3; i++ {
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.EqualValues(t, 3, atomic.LoadInt32(&callCount))
}

func TestTokenProvider_CachesUntilExpiry(t *testing.T) {
	var callCount int32
	provider := NewTokenProvider(func() (string, time.Duration, error) {
		count := atomic.AddInt32(&callCount, 1)
		return "token-" + string(rune('0'+count)), time.Hour, nil
	}, 30*time.Second)

	token1, err := provider.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "token-1", token1)

	token2, err := provider.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "token-1", token2, "second call should reuse the cached token")

	assert.EqualValues(t, 1, atomic.LoadInt32(&callCount))
}

func TestTokenProvider_RefreshesWhenExpired(t *testing.T) {
	var callCount int32
	provider := NewTokenProvider(func() (string, time.Duration, error) {
		count := atomic.AddInt32(&callCount, 1)
		return "token-" + string(rune('0'+count)), time.Millisecond, nil
	}, 0)

	token1, err := provider.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "token-1", token1)

	time.Sleep(10 * time.Millisecond)

	token2, err := provider.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "token-2", token2)
}

func TestTokenProvider_ReturnsErrorOnRefreshFailure(t *testing.T) {
	provider := NewTokenProvider(func() (string, time.Duration, error) {
		return "", 0, errors.New("refresh failed")
	}, 0)

	_, err := provider.GetToken()
	assert.Error(t, err)
}

func TestTokenProvider_ConcurrentAccessIsSafe(t *testing.T) {
	var callCount int32
	provider := NewTokenProvider(func() (string, time.Duration, error) {
		atomic.AddInt32(&callCount, 1)
		time.Sleep(10 * time.Millisecond)
		return "token", time.Hour, nil
	}, 30*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := provider.GetToken()
			assert.NoError(t, err)
			assert.Equal(t, "token", token)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&callCount), int32(5), "caching should bound refresh calls well below the goroutine count")
}

func TestNewHTTPClient_AttachesBearerToken(t *testing.T) {
	var capturedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(StaticToken("my-token"))

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "Bearer my-token", capturedAuth)
}
