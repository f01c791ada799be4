package output

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"

	"github.com/ligustah/milvue/pkg/bundle"
)

// ErrInvalidName is returned for study keys or file names that would
// escape their study directory.
var ErrInvalidName = errors.New("output: invalid name")

// Sink writes result files as <studyKey>/<name> objects of a bucket.
type Sink struct {
	bucket *blob.Bucket
	owned  bool
}

// OpenDir returns a Sink rooted at dir on the local filesystem. The
// directory and every study directory below it are created on demand.
func OpenDir(dir string) (*Sink, error) {
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{
		CreateDir: true,
		NoTempDir: true,
		Metadata:  fileblob.MetadataDontWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("open output dir %s: %w", dir, err)
	}
	return &Sink{bucket: bucket, owned: true}, nil
}

// New wraps an existing bucket. Close does not close it.
func New(bucket *blob.Bucket) *Sink {
	return &Sink{bucket: bucket}
}

// Key returns the object key for a file of a study.
func Key(studyKey, name string) (string, error) {
	if err := checkName(studyKey); err != nil {
		return "", fmt.Errorf("study key: %w", err)
	}
	if err := checkName(name); err != nil {
		return "", fmt.Errorf("file name: %w", err)
	}
	return path.Join(studyKey, name), nil
}

// Write stores data under the study's directory and returns its key.
func (s *Sink) Write(ctx context.Context, studyKey, name string, data []byte) (string, error) {
	key, err := Key(studyKey, name)
	if err != nil {
		return "", err
	}
	err = s.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{
		ContentType: bundle.DICOMContentType,
	})
	if err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return key, nil
}

// Close releases the bucket if the Sink opened it.
func (s *Sink) Close() error {
	if !s.owned {
		return nil
	}
	return s.bucket.Close()
}

func checkName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}
