package bundle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

// ErrMalformedBoundary is returned when a Content-Type declares a boundary
// that cannot be parsed.
var ErrMalformedBoundary = errors.New("bundle: malformed boundary")

// Part is one decoded part of a multipart body.
type Part struct {
	Name        string
	ContentType string
	Data        []byte
}

// Boundary returns the boundary declared by contentType, or "" if there is
// none.
func Boundary(contentType string) (string, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		if strings.Contains(strings.ToLower(contentType), "boundary=") {
			return "", fmt.Errorf("%w: %v", ErrMalformedBoundary, err)
		}
		return "", nil
	}
	return params["boundary"], nil
}

// Decode splits body into its parts. A contentType without a boundary, or an
// empty body, yields no parts and no error. A body that ends before the
// closing delimiter is an error.
func Decode(contentType string, body io.Reader) ([]Part, error) {
	boundary, err := Boundary(contentType)
	if err != nil {
		return nil, err
	}
	if boundary == "" {
		return nil, nil
	}

	br := bufio.NewReader(body)
	if _, err := br.Peek(1); err == io.EOF {
		return nil, nil
	}

	mr := multipart.NewReader(br, boundary)
	var parts []Part
	for i := 0; ; i++ {
		p, err := mr.NextPart()
		if err == io.EOF {
			return parts, nil
		}
		if err != nil {
			return nil, fmt.Errorf("bundle: part %d: %w", i, err)
		}

		data, err := io.ReadAll(p)
		p.Close()
		if err != nil {
			return nil, fmt.Errorf("bundle: read part %d: %w", i, err)
		}

		parts = append(parts, Part{
			Name:        partName(p, i),
			ContentType: p.Header.Get("Content-Type"),
			Data:        data,
		})
	}
}

func partName(p *multipart.Part, i int) string {
	if name := p.FileName(); name != "" {
		return name
	}
	if name := p.FormName(); name != "" {
		return name
	}
	return fmt.Sprintf("part-%d", i)
}
