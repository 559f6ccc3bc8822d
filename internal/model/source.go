package model

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
)

const gcsScheme = "gs://"

// ReadArtifact returns the raw artifact at path, a local file or a
// gs://bucket/object URL read with application default credentials.
func ReadArtifact(ctx context.Context, path string) ([]byte, error) {
	if !strings.HasPrefix(path, gcsScheme) {
		return os.ReadFile(path)
	}
	bucket, object, err := splitGCSURL(path)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func splitGCSURL(path string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(path, gcsScheme)
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" || object == "" || strings.HasSuffix(object, "/") {
		return "", "", fmt.Errorf("malformed gcs url %q, want gs://bucket/object", path)
	}
	return bucket, object, nil
}
