// Package testutils provides shared test infrastructure: instance fixtures
// and a scripted fake of the inference service.
package testutils

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/ligustah/milvue/internal/dicomfile"
)

const (
	explicitVRLittleEndian = "1.2.840.10008.1.2.1"
	secondaryCaptureClass  = "1.2.840.10008.5.1.4.1.1.7"
	implementationClass    = "1.2.3.4.5.6.7"
)

// FakeDICOM encodes a minimal DICOM Part 10 file carrying the given keys.
// An empty study omits the StudyInstanceUID element.
func FakeDICOM(t testing.TB, study, sop string) []byte {
	t.Helper()

	elems := []*dicom.Element{
		mustElement(t, tag.FileMetaInformationVersion, []byte{0, 1}),
		mustElement(t, tag.MediaStorageSOPClassUID, []string{secondaryCaptureClass}),
		mustElement(t, tag.MediaStorageSOPInstanceUID, []string{sop}),
		mustElement(t, tag.TransferSyntaxUID, []string{explicitVRLittleEndian}),
		mustElement(t, tag.ImplementationClassUID, []string{implementationClass}),
		mustElement(t, tag.SOPClassUID, []string{secondaryCaptureClass}),
		mustElement(t, tag.SOPInstanceUID, []string{sop}),
	}
	if study != "" {
		elems = append(elems, mustElement(t, tag.StudyInstanceUID, []string{study}))
	}

	var buf bytes.Buffer
	if err := dicom.Write(&buf, dicom.Dataset{Elements: elems}); err != nil {
		t.Fatalf("write dicom: %v", err)
	}
	return buf.Bytes()
}

// WithTruncatedPixelData appends a PixelData element that declares far
// more bytes than it carries, as found in files cut short during a copy.
func WithTruncatedPixelData(data []byte) []byte {
	out := append([]byte(nil), data...)
	// (7FE0,0010) OB, explicit VR little endian: reserved bytes then a
	// 32-bit length.
	out = append(out, 0xE0, 0x7F, 0x10, 0x00, 'O', 'B', 0x00, 0x00)
	out = append(out, 0xFF, 0xFF, 0xFF, 0x0F)
	return append(out, 1, 2, 3)
}

func mustElement(t testing.TB, tg tag.Tag, value any) *dicom.Element {
	t.Helper()
	elem, err := dicom.NewElement(tg, value)
	if err != nil {
		t.Fatalf("new element %v: %v", tg, err)
	}
	return elem
}

// FakeFile returns a small text fixture understood by FakeReader. It lets
// tests that do not care about DICOM encoding build instances cheaply.
func FakeFile(study, sop string) []byte {
	var b strings.Builder
	if study != "" {
		fmt.Fprintf(&b, "STUDY=%s\n", study)
	}
	if sop != "" {
		fmt.Fprintf(&b, "SOP=%s\n", sop)
	}
	return []byte(b.String())
}

// WriteFile writes data to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// FakeReader reads the fixtures produced by FakeFile.
type FakeReader struct{}

// ReadFile reads a fixture from disk.
func (FakeReader) ReadFile(path string) (dicomfile.Attributes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return dicomfile.Attributes{}, err
	}
	return FakeReader{}.ReadBytes(data)
}

// ReadBytes parses a fixture held in memory.
func (FakeReader) ReadBytes(data []byte) (dicomfile.Attributes, error) {
	var attrs dicomfile.Attributes
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			return attrs, fmt.Errorf("parse fixture: unexpected line %q", sc.Text())
		}
		switch k {
		case "STUDY":
			attrs.StudyInstanceUID = v
		case "SOP":
			attrs.SOPInstanceUID = v
		}
	}
	if attrs.StudyInstanceUID == "" {
		return attrs, fmt.Errorf("%w: StudyInstanceUID", dicomfile.ErrMissingAttribute)
	}
	if attrs.SOPInstanceUID == "" {
		return attrs, fmt.Errorf("%w: SOPInstanceUID", dicomfile.ErrMissingAttribute)
	}
	return attrs, nil
}
