package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 хранит объекты в памяти и запоминает последний запрос
type fakeS3 struct {
	objects map[string][]byte
	lastPut *s3.PutObjectInput
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = data
	f.lastPut = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemoryStore(),
		"s3":     &S3Store{client: &fakeS3{objects: map[string][]byte{}}, bucket: "notes"},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "monographs/a", []byte(`{"id":"a"}`)))

			got, err := s.Get(ctx, "monographs/a")
			require.NoError(t, err)
			assert.Equal(t, `{"id":"a"}`, string(got))

			require.NoError(t, s.Delete(ctx, "monographs/a"))
			_, err = s.Get(ctx, "monographs/a")
			assert.ErrorIs(t, err, common.ErrorNotFound)

			// удаление отсутствующего ключа не ошибка
			assert.NoError(t, s.Delete(ctx, "monographs/a"))
		})
	}
}

func TestS3Store_Put_SetsBucketAndLength(t *testing.T) {
	f := &fakeS3{objects: map[string][]byte{}}
	s := &S3Store{client: f, bucket: "notes"}

	require.NoError(t, s.Put(context.Background(), "k", []byte("12345")))
	require.NotNil(t, f.lastPut)
	assert.Equal(t, "notes", aws.ToString(f.lastPut.Bucket))
	assert.Equal(t, int64(5), aws.ToInt64(f.lastPut.ContentLength))
}

func TestS3Store_WrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	s := &S3Store{client: &fakeS3{objects: map[string][]byte{}, err: boom}, bucket: "notes"}
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, "k", nil), boom)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "k"), boom)
}

func TestNewS3Store(t *testing.T) {
	s, err := NewS3Store(context.Background(), S3Options{
		AccessKey: "admin", SecretKey: "secret", Region: "us-east-1",
		Bucket: "notes", BaseEndpoint: "http://127.0.0.1:9000/",
	})
	require.NoError(t, err)
	assert.Equal(t, "notes", s.bucket)
	assert.NotNil(t, s.client)
}
