package bundle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
)

// DICOMContentType is the media type of a single DICOM instance.
const DICOMContentType = "application/dicom"

// Source is one part to be encoded. Open is called once, when the part is
// reached, so large files are never held in memory.
type Source struct {
	Name        string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// FileSource streams the file at path as a part called name.
func FileSource(name, path string) Source {
	return Source{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// BytesSource encodes data as a part called name.
func BytesSource(name string, data []byte) Source {
	return Source{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// PartName returns the part name used for an instance key.
func PartName(instanceKey string) string {
	return instanceKey + ".dcm"
}

// Option configures Encode.
type Option func(*options)

type options struct {
	boundary    string
	contentType string
}

// WithBoundary fixes the boundary instead of generating a random one.
func WithBoundary(boundary string) Option {
	return func(o *options) {
		o.boundary = boundary
	}
}

// WithPartType sets the content type of parts that do not carry their own.
// Default: application/dicom
func WithPartType(contentType string) Option {
	return func(o *options) {
		o.contentType = contentType
	}
}

// Encode streams sources as a multipart/related body. The returned body must
// be closed by the caller; closing it early stops the encoder. The second
// return value is the Content-Type header to send with the body, including
// the boundary.
func Encode(ctx context.Context, sources []Source, opts ...Option) (io.ReadCloser, string, error) {
	o := options{contentType: DICOMContentType}
	for _, opt := range opts {
		opt(&o)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	if o.boundary != "" {
		if err := mw.SetBoundary(o.boundary); err != nil {
			return nil, "", fmt.Errorf("bundle: %w", err)
		}
	}

	contentType := mime.FormatMediaType("multipart/related", map[string]string{
		"type":     o.contentType,
		"boundary": mw.Boundary(),
	})

	go func() {
		pw.CloseWithError(writeParts(ctx, mw, sources, o.contentType))
	}()

	return pr, contentType, nil
}

func writeParts(ctx context.Context, mw *multipart.Writer, sources []Source, defaultType string) error {
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writePart(mw, src, defaultType); err != nil {
			return fmt.Errorf("bundle: part %s: %w", src.Name, err)
		}
	}
	return mw.Close()
}

func writePart(mw *multipart.Writer, src Source, defaultType string) error {
	ct := src.ContentType
	if ct == "" {
		ct = defaultType
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Type", ct)
	header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": src.Name,
	}))

	w, err := mw.CreatePart(header)
	if err != nil {
		return err
	}

	rc, err := src.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(w, rc)
	return err
}
