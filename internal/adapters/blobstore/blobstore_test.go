package blobstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_MissingBucket_ReturnsError(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Region: "us-east-1"})

	require.Error(t, err)
}

func TestGet_FetchesObjectBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/docs/hello.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("hello blob"))
	}))
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), Config{
		Bucket:       "docs",
		Region:       "us-east-1",
		Endpoint:     srv.URL,
		AccessKey:    "minio",
		SecretKey:    "minio123",
		UsePathStyle: true,
	})
	require.NoError(t, err)

	body, err := s.Get(context.Background(), "hello.txt")
	require.NoError(t, err)
	require.Equal(t, "hello blob", string(body))
}

func TestGet_MissingKey_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`))
	}))
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), Config{
		Bucket:       "docs",
		Region:       "us-east-1",
		Endpoint:     srv.URL,
		AccessKey:    "minio",
		SecretKey:    "minio123",
		UsePathStyle: true,
	})
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "missing.txt")
	require.Error(t, err)
}
