package dicomfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ErrMissingAttribute is returned when a dataset lacks one of the
// identifiers needed to place it in an inventory.
var ErrMissingAttribute = errors.New("dicomfile: missing attribute")

// Attributes are the identifiers read from a single DICOM instance.
type Attributes struct {
	StudyInstanceUID string
	SOPInstanceUID   string
}

// Reader extracts Attributes from DICOM files and in-memory datasets.
// Reading stops as soon as both identifiers are known, so pixel data and
// anything after it is never read.
type Reader struct{}

// NewReader returns a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadFile reads the identifiers of the file at path.
func (r *Reader) ReadFile(path string) (Attributes, error) {
	f, err := os.Open(path)
	if err != nil {
		return Attributes{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Attributes{}, err
	}
	attrs, err := read(f, info.Size())
	if err != nil {
		return Attributes{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return attrs, nil
}

// ReadBytes reads the identifiers of an encoded dataset held in memory.
func (r *Reader) ReadBytes(data []byte) (Attributes, error) {
	attrs, err := read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Attributes{}, fmt.Errorf("parse dataset: %w", err)
	}
	return attrs, nil
}

func read(in io.Reader, size int64) (Attributes, error) {
	p, err := dicom.NewParser(in, size, nil, dicom.SkipPixelData())
	if err != nil {
		return Attributes{}, err
	}

	var attrs Attributes
	for {
		elem, err := p.Next()
		if errors.Is(err, dicom.ErrorEndOfDICOM) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Attributes{}, err
		}

		switch elem.Tag {
		case tag.StudyInstanceUID:
			if attrs.StudyInstanceUID, err = stringValue(elem); err != nil {
				return Attributes{}, err
			}
		case tag.SOPInstanceUID:
			if attrs.SOPInstanceUID, err = stringValue(elem); err != nil {
				return Attributes{}, err
			}
		case tag.PixelData:
			return attrs, missing(attrs)
		}
		if attrs.StudyInstanceUID != "" && attrs.SOPInstanceUID != "" {
			return attrs, nil
		}
	}
	return attrs, missing(attrs)
}

func missing(attrs Attributes) error {
	switch {
	case attrs.StudyInstanceUID == "":
		return fmt.Errorf("%w: %s", ErrMissingAttribute, tagName(tag.StudyInstanceUID))
	case attrs.SOPInstanceUID == "":
		return fmt.Errorf("%w: %s", ErrMissingAttribute, tagName(tag.SOPInstanceUID))
	}
	return nil
}

func stringValue(elem *dicom.Element) (string, error) {
	name := tagName(elem.Tag)
	values, ok := elem.Value.GetValue().([]string)
	if !ok || len(values) == 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingAttribute, name)
	}
	v := strings.Trim(values[0], "\x00 ")
	if v == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrMissingAttribute, name)
	}
	return v, nil
}

func tagName(t tag.Tag) string {
	if info, err := tag.Find(t); err == nil {
		return info.Name
	}
	return t.String()
}
