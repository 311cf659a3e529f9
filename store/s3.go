package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"potluck"
)

type s3Client interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(context.Context, *s3.DeleteObjectInput, ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(context.Context, *s3.ListObjectsV2Input, ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 stores each session as a JSON object under prefix. Writes are
// conditional on the object's ETag, so a concurrent writer makes the put
// fail with 412 instead of overwriting.
type S3 struct {
	client s3Client
	bucket string
	prefix string
}

func NewS3(client s3Client, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3) key(id string) string {
	return s.prefix + id + ".json"
}

func (s *S3) Create(ctx context.Context, sess potluck.Session) error {
	body, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(sess.ID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("session %s already exists: %w", sess.ID, ErrConflict)
		}
		return fmt.Errorf("failed to put session %s to S3: %w", sess.ID, err)
	}
	return nil
}

func (s *S3) Get(ctx context.Context, id string) (potluck.Session, error) {
	sess, _, err := s.load(ctx, s.key(id), id)
	return sess, err
}

func (s *S3) Update(ctx context.Context, sess potluck.Session, expectedVersion int64) error {
	current, etag, err := s.load(ctx, s.key(sess.ID), sess.ID)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return conflict(sess.ID, expectedVersion)
	}

	body, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(sess.ID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfMatch:     aws.String(etag),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return conflict(sess.ID, expectedVersion)
		}
		return fmt.Errorf("failed to put session %s to S3: %w", sess.ID, err)
	}
	return nil
}

func (s *S3) Delete(ctx context.Context, id string) error {
	if _, _, err := s.load(ctx, s.key(id), id); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete session %s from S3: %w", id, err)
	}
	return nil
}

func (s *S3) ListByHost(ctx context.Context, hostID string) ([]potluck.Session, error) {
	return s.list(ctx, func(sess potluck.Session) bool { return sess.HostID == hostID })
}

func (s *S3) ListByParticipant(ctx context.Context, userID string) ([]potluck.Session, error) {
	return s.list(ctx, func(sess potluck.Session) bool { return hasParticipant(sess, userID) })
}

func (s *S3) list(ctx context.Context, keep func(potluck.Session) bool) ([]potluck.Session, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	out := make([]potluck.Session, 0)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions in S3: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			id := strings.TrimSuffix(strings.TrimPrefix(key, s.prefix), ".json")
			sess, _, err := s.load(ctx, key, id)
			if err != nil {
				// Deleted between list and get.
				if potluck.IsKind(err, potluck.KindNotFound) {
					continue
				}
				return nil, err
			}
			if keep(sess) {
				out = append(out, sess)
			}
		}
	}
	sortSessions(out)
	return out, nil
}

func (s *S3) load(ctx context.Context, key, id string) (potluck.Session, string, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return potluck.Session{}, "", notFound(id)
		}
		return potluck.Session{}, "", fmt.Errorf("failed to get session object from S3: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return potluck.Session{}, "", fmt.Errorf("failed to read session object: %w", err)
	}
	sess, err := decode(data)
	if err != nil {
		slog.Error("STORE: Undecodable session object", "key", key, "error", err)
		return potluck.Session{}, "", err
	}
	return sess, aws.ToString(resp.ETag), nil
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey"
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
