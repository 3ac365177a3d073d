package wext

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
)

// IsGoogleStoragePath reports whether p names an object in Google Storage.
func IsGoogleStoragePath(p string) bool {
	return strings.HasPrefix(p, "gs://")
}

// splitGoogleStoragePath turns gs://bucket/path/to/object into its bucket and
// object names.
func splitGoogleStoragePath(p string) (bucket, object string, err error) {
	pathParts := strings.SplitN(strings.TrimPrefix(p, "gs://"), "/", 2)
	if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] == "" {
		return "", "", fmt.Errorf("Tried to split your google storage path into 2 parts, but got %d: %v", len(pathParts), pathParts)
	}

	return pathParts[0], pathParts[1], nil
}

// MaybeOpenFromGoogleStorage opens p for reading. If p is a gs:// path and
// client is non-nil, the object is streamed from Google Storage; otherwise p
// is treated as a local file.
func MaybeOpenFromGoogleStorage(ctx context.Context, p string, client *storage.Client) (io.ReadCloser, error) {
	if client != nil && IsGoogleStoragePath(p) {
		bucketName, objectName, err := splitGoogleStoragePath(p)
		if err != nil {
			return nil, err
		}

		rdr, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("%s: %s", p, err))
		}

		return rdr, nil
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return f, nil
}

// MaybeCreateInGoogleStorage opens p for writing. The returned writer must be
// closed for a Google Storage upload to be committed.
func MaybeCreateInGoogleStorage(ctx context.Context, p string, client *storage.Client) (io.WriteCloser, error) {
	if client != nil && IsGoogleStoragePath(p) {
		bucketName, objectName, err := splitGoogleStoragePath(p)
		if err != nil {
			return nil, err
		}

		return client.Bucket(bucketName).Object(objectName).NewWriter(ctx), nil
	}

	f, err := os.Create(p)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return f, nil
}

// JoinPath joins a directory and a file name, using forward slashes for
// Google Storage paths and the OS separator otherwise.
func JoinPath(dir, name string) string {
	if IsGoogleStoragePath(dir) {
		return strings.TrimSuffix(dir, "/") + "/" + path.Clean(name)
	}

	return filepath.Join(dir, name)
}

// NeedsGoogleStorage reports whether any of paths requires a storage client.
func NeedsGoogleStorage(paths ...string) bool {
	for _, p := range paths {
		if IsGoogleStoragePath(p) {
			return true
		}
	}

	return false
}
