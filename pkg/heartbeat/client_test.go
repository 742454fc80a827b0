package heartbeat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyvo/heartbeat/pkg/registry"
)

func TestClientSendRoundTrip(t *testing.T) {
	reg := registry.New()
	ts := httptest.NewServer(New(Options{Registry: reg}).Handler())
	defer ts.Close()

	client := NewClient(ts.URL + "/")
	names := []string{"alice", "user one", "a+b", "x&name=y", "100%", "café"}
	for _, name := range names {
		require.NoError(t, client.Send(context.Background(), name), name)
		_, ok := reg.LastSeen(name)
		assert.True(t, ok, "registry missing %q", name)
	}
	assert.Equal(t, len(names), reg.Len())
}

func TestClientSendEmptyName(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	assert.ErrorIs(t, client.Send(context.Background(), ""), ErrEmptyName)
}

func TestClientSendRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, BodyMissingName, http.StatusBadRequest)
	}))
	defer ts.Close()

	err := NewClient(ts.URL).Send(context.Background(), "alice")
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), BodyMissingName)
}

func TestNewClientDefaultURL(t *testing.T) {
	assert.Equal(t, "http://localhost:12211", NewClient("").baseURL)
}

func TestEncodeName(t *testing.T) {
	assert.Equal(t, "user%20one", EncodeName("user one"))
	assert.Equal(t, "a%2Bb", EncodeName("a+b"))
	assert.Equal(t, "x%26name%3Dy", EncodeName("x&name=y"))
}
