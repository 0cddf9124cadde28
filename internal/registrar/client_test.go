package registrar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"letspay/internal/faults"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "0x1111111111111111111111111111111111111111"

func TestFullName(t *testing.T) {
	assert.Equal(t, "alice.letspay.eth", FullName("Alice", "letspay.eth"))
}

func TestAvailableLowercasesLabel(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"available": true, "subname": "alice.letspay.eth"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	ok, err := c.Available(context.Background(), "ALICE")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/ens-availability/alice", gotPath)
}

func TestRegisterSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var req struct {
			Label string `json:"label"`
			Owner string `json:"owner"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.Label)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"subname": Name{Name: "alice.letspay.eth", Owner: req.Owner},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	name, err := c.Register(context.Background(), "Alice", owner)
	require.NoError(t, err)
	assert.Equal(t, "alice.letspay.eth", name.Name)
}

func TestRegisterOwnershipMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"subname": Name{Name: "alice.letspay.eth", Owner: "0x2222222222222222222222222222222222222222"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	_, err := c.Register(context.Background(), "alice", owner)
	kind, ok := faults.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, faults.KindRegistrarUnavailable, kind)
}

func TestRegisterUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	_, err := c.Register(context.Background(), "alice", owner)
	kind, ok := faults.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, faults.KindRegistrarUnavailable, kind)
}

func TestNamesOwnedBy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"subnames": []Name{
				{Name: "alice.letspay.eth", Owner: owner},
				{Name: "al.letspay.eth", Owner: owner},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	names, err := c.NamesOwnedBy(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, names, 2)
	// Callers take the first record only.
	assert.Equal(t, "alice.letspay.eth", names[0].Name)
}

func TestNamesOwnedByUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", zerolog.Nop())
	_, err := c.NamesOwnedBy(context.Background(), owner)
	kind, ok := faults.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, faults.KindRegistrarUnavailable, kind)
}

func TestMemoryDirectory(t *testing.T) {
	dir := NewMemoryDirectory()
	ctx := context.Background()

	free, err := dir.IsAvailable(ctx, "alice.letspay.eth")
	require.NoError(t, err)
	assert.True(t, free)

	created, err := dir.CreateSubname(ctx, "alice", owner)
	require.NoError(t, err)
	assert.Equal(t, "alice.letspay.eth", created.Name)

	free, err = dir.IsAvailable(ctx, "alice.letspay.eth")
	require.NoError(t, err)
	assert.False(t, free)

	_, err = dir.CreateSubname(ctx, "alice", owner)
	require.Error(t, err)

	names, err := dir.ListByOwner(ctx, "letspay.eth", owner)
	require.NoError(t, err)
	require.Len(t, names, 1)
}
