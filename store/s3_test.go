package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	data []byte
	etag string
}

type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string]fakeObject
	seq       int
	beforePut func()
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func preconditionFailed() error {
	return &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(obj.data)),
		ETag: aws.String(obj.etag),
	}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.beforePut != nil {
		hook := f.beforePut
		f.beforePut = nil
		hook()
	}

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	obj, exists := f.objects[key]
	if aws.ToString(in.IfNoneMatch) == "*" && exists {
		return nil, preconditionFailed()
	}
	if in.IfMatch != nil && (!exists || obj.etag != aws.ToString(in.IfMatch)) {
		return nil, preconditionFailed()
	}
	f.seq++
	etag := fmt.Sprintf("\"etag-%d\"", f.seq)
	f.objects[key] = fakeObject{data: data, etag: etag}
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestS3(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewS3(newFakeS3(), "bucket", "sessions/")
	})
}

func TestS3UpdateLosesETagRace(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	st := NewS3(fake, "bucket", "sessions/")

	s := testSession("s1", "h1", "2025-03-01")
	require.NoError(t, st.Create(ctx, s))

	// Another writer lands between our read and our conditional put.
	fake.beforePut = func() {
		other := s.Clone()
		other.Name = "Other writer"
		other.Version = 2
		require.NoError(t, st.Update(ctx, other, 1))
	}

	mine := s.Clone()
	mine.Name = "Mine"
	mine.Version = 2
	assert.ErrorIs(t, st.Update(ctx, mine, 1), ErrConflict)

	got, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Other writer", got.Name)
}

func TestS3ObjectKey(t *testing.T) {
	fake := newFakeS3()
	st := NewS3(fake, "bucket", "sessions/")
	require.NoError(t, st.Create(context.Background(), testSession("s1", "h1", "2025-03-01")))

	_, ok := fake.objects["sessions/s1.json"]
	assert.True(t, ok)
}
