package poll_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"potluck"
	"potluck/api"
	"potluck/directory"
	"potluck/generator/mock"
	"potluck/poll"
	"potluck/session"
	"potluck/store"
)

func newAPI(t *testing.T) (*httptest.Server, *session.Service) {
	t.Helper()
	users := directory.New([]potluck.User{
		{ID: "H", Name: "Hannah"},
		{ID: "P", Name: "Priya"},
	})
	svc := session.NewService(store.NewMemory(), users, mock.NewLLMClient(), session.Options{
		RetryBaseDelay: time.Millisecond,
	})
	srv := httptest.NewServer(api.NewRouter(svc, users, api.Options{}))
	t.Cleanup(srv.Close)
	return srv, svc
}

func TestClientFetch(t *testing.T) {
	srv, svc := newAPI(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, session.CreateInput{Name: "Friday potluck", Date: "2025-06-13", HostID: "H", Participants: []string{"P"}})
	require.NoError(t, err)

	client := poll.NewClient(srv.URL+"/", "P", srv.Client())

	snap, err := client.Fetch(ctx, id, "")
	require.NoError(t, err)
	assert.False(t, snap.NotModified)
	assert.Equal(t, `"1"`, snap.ETag)
	assert.Equal(t, poll.DefaultInterval, snap.Interval)
	assert.Equal(t, id, snap.Session.ID)
	assert.Equal(t, int64(1), snap.Session.Version)

	snap, err = client.Fetch(ctx, id, `"1"`)
	require.NoError(t, err)
	assert.True(t, snap.NotModified)
	assert.Equal(t, `"1"`, snap.ETag)
	assert.Empty(t, snap.Session.ID)

	_, err = svc.AddIngredients(ctx, id, "P", []string{"lime"})
	require.NoError(t, err)

	snap, err = client.Fetch(ctx, id, `"1"`)
	require.NoError(t, err)
	assert.False(t, snap.NotModified)
	assert.Equal(t, `"2"`, snap.ETag)
	assert.Equal(t, []potluck.ContributedIngredient{{Name: "lime", ContributorName: "Priya"}}, snap.Session.AggregatedIngredients)
}

func TestClientFetchErrors(t *testing.T) {
	srv, _ := newAPI(t)
	client := poll.NewClient(srv.URL, "P", srv.Client())

	_, err := client.Fetch(context.Background(), "missing", "")
	require.Error(t, err)
	assert.True(t, potluck.IsKind(err, potluck.KindNotFound), "error: %v", err)
	assert.Contains(t, potluck.Message(err), "missing")
}

func TestClientFetchUnexpectedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "P", r.Header.Get("X-User-ID"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := poll.NewClient(srv.URL, "P", srv.Client()).Fetch(context.Background(), "abc", "")
	require.Error(t, err)
	assert.Equal(t, potluck.KindInternal, potluck.KindOf(err))
	assert.Contains(t, err.Error(), "503")
}
