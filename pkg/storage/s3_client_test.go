package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves the subset of the S3 REST API the client uses, path style
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	respond := func(status int, body string) *http.Response {
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{"Content-Type": {"application/xml"}, "Etag": {`"etag"`}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}
	}

	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2025-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k]))
		}
		b.WriteString("</ListBucketResult>")
		return respond(http.StatusOK, b.String()), nil

	case req.Method == http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		f.objects[key] = body
		return respond(http.StatusOK, ""), nil

	case req.Method == http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, "<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>"), nil
		}
		resp := respond(http.StatusOK, "")
		resp.Header.Set("Content-Type", "application/json")
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp, nil

	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, ""), nil
	}
	return respond(http.StatusMethodNotAllowed, ""), nil
}

func newFakeClient(t *testing.T) (S3Client, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}}
	cfg, err := LoadAWSConfig(context.Background(), AWSOptions{
		Region:          "us-east-1",
		Endpoint:        "https://s3.test.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		HTTPClient:      &http.Client{Transport: fake},
	})
	require.NoError(t, err)
	return NewS3Client(cfg, true), fake
}

func TestS3ClientRoundTrip(t *testing.T) {
	client, fake := newFakeClient(t)
	ctx := context.Background()

	require.NoError(t, client.Upload(ctx, "backups", "registry/a.json", strings.NewReader(`{"projects":[]}`)))
	require.NoError(t, client.Upload(ctx, "backups", "registry/b.json", strings.NewReader(`{}`)))
	assert.Len(t, fake.objects, 2)

	rc, err := client.Download(ctx, "backups", "registry/a.json")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.JSONEq(t, `{"projects":[]}`, string(body))

	objects, err := client.List(ctx, "backups", "registry/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "registry/a.json", objects[0].Key)
	assert.Equal(t, int64(2), objects[1].Size)

	require.NoError(t, client.Delete(ctx, "backups", "registry/a.json"))
	_, err = client.Download(ctx, "backups", "registry/a.json")
	assert.Error(t, err)
}
