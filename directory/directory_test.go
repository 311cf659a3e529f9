package directory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"potluck"
)

const usersDoc = `{"users": [
	{"id": "a", "name": "Alice Smith", "email": "alice@example.com", "friends": ["b", "c", "ghost"]},
	{"id": "b", "name": "Bob Brown", "email": "rbrown@example.com", "friends": ["a"]},
	{"id": "c", "name": "Carol White", "email": "cwhite@example.com"}
]}`

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		src       Source
		wantUsers int
		wantErr   bool
	}{
		{name: "wrapped document", src: NewTestSource([]byte(usersDoc)), wantUsers: 3},
		{name: "bare array", src: NewTestSource([]byte(` [{"id": "a", "name": "Alice"}]`)), wantUsers: 1},
		{name: "invalid json", src: NewTestSource([]byte(`{"users": [`)), wantErr: true},
		{name: "source error", src: NewTestSourceWithError(), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Load(context.Background(), tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, d.users, tt.wantUsers)
		})
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(usersDoc), 0644))

	data, err := NewFileSource(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte(usersDoc), data)

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.json")).Load(context.Background())
	assert.Error(t, err)
}

type mockS3Getter struct {
	body string
	err  error
	in   *s3.GetObjectInput
}

func (m *mockS3Getter) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.in = in
	if m.err != nil {
		return nil, m.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(m.body))}, nil
}

func TestS3Source(t *testing.T) {
	m := &mockS3Getter{body: usersDoc}
	data, err := NewS3Source(m, "bucket", "users.json").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, usersDoc, string(data))
	assert.Equal(t, "bucket", aws.ToString(m.in.Bucket))
	assert.Equal(t, "users.json", aws.ToString(m.in.Key))

	failing := &mockS3Getter{err: errors.New("access denied")}
	_, err = NewS3Source(failing, "bucket", "users.json").Load(context.Background())
	assert.ErrorIs(t, err, failing.err)
}

func TestLookup(t *testing.T) {
	d, err := Load(context.Background(), NewTestSource([]byte(usersDoc)))
	require.NoError(t, err)

	u, err := d.Lookup(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "Bob Brown", u.Name)

	_, err = d.Lookup(context.Background(), "nobody")
	assert.True(t, potluck.IsKind(err, potluck.KindNotFound))
}

func TestSearchFriends(t *testing.T) {
	d, err := Load(context.Background(), NewTestSource([]byte(usersDoc)))
	require.NoError(t, err)

	tests := []struct {
		name    string
		userID  string
		query   string
		want    []string
		wantErr potluck.Kind
	}{
		{name: "blank query lists all known friends", userID: "a", query: "", want: []string{"b", "c"}},
		{name: "name substring", userID: "a", query: "carol", want: []string{"c"}},
		{name: "email local part", userID: "a", query: "rbrown", want: []string{"b"}},
		{name: "no match", userID: "a", query: "zzz", want: []string{}},
		{name: "user without friends", userID: "c", query: "", want: []string{}},
		{name: "unknown user", userID: "nobody", query: "a", wantErr: potluck.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.SearchFriends(context.Background(), tt.userID, tt.query)
			if tt.wantErr != "" {
				assert.True(t, potluck.IsKind(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, u := range got {
				ids = append(ids, u.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
