package dicomfile_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/milvue/internal/dicomfile"
	"github.com/ligustah/milvue/internal/testutils"
)

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := testutils.WriteFile(t, dir, "a.dcm", testutils.FakeDICOM(t, "1.2.3", "1.2.3.4"))

	attrs, err := dicomfile.NewReader().ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", attrs.StudyInstanceUID)
	assert.Equal(t, "1.2.3.4", attrs.SOPInstanceUID)
}

func TestReadBytes(t *testing.T) {
	attrs, err := dicomfile.NewReader().ReadBytes(testutils.FakeDICOM(t, "9.8.7", "9.8.7.65"))
	require.NoError(t, err)
	assert.Equal(t, dicomfile.Attributes{StudyInstanceUID: "9.8.7", SOPInstanceUID: "9.8.7.65"}, attrs)
}

func TestReadStopsBeforePixelData(t *testing.T) {
	data := testutils.WithTruncatedPixelData(testutils.FakeDICOM(t, "1.2.3", "1.2.3.4"))
	want := dicomfile.Attributes{StudyInstanceUID: "1.2.3", SOPInstanceUID: "1.2.3.4"}

	attrs, err := dicomfile.NewReader().ReadBytes(data)
	require.NoError(t, err)
	assert.Equal(t, want, attrs)

	path := testutils.WriteFile(t, t.TempDir(), "a.dcm", data)
	attrs, err = dicomfile.NewReader().ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, attrs)
}

func TestMissingStudy(t *testing.T) {
	_, err := dicomfile.NewReader().ReadBytes(testutils.FakeDICOM(t, "", "1.2.3.4"))
	assert.True(t, errors.Is(err, dicomfile.ErrMissingAttribute), "got %v", err)
	assert.Contains(t, err.Error(), "StudyInstanceUID")
}

func TestNotDICOM(t *testing.T) {
	path := testutils.WriteFile(t, t.TempDir(), "notes.txt", []byte("just some text, no preamble"))

	_, err := dicomfile.NewReader().ReadFile(path)
	assert.Error(t, err)
}

func TestMissingFile(t *testing.T) {
	_, err := dicomfile.NewReader().ReadFile(filepath.Join(t.TempDir(), "absent.dcm"))
	assert.Error(t, err)
}
