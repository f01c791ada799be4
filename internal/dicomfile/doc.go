// Package dicomfile reads the identifiers the pipeline needs from DICOM
// Part 10 data: the StudyInstanceUID that groups files into studies and
// the SOPInstanceUID that names each instance.
//
// Elements are read one at a time and reading stops as soon as both
// identifiers are known, or at PixelData. A file whose pixel data is
// truncated or corrupt is still usable.
//
// The underlying parser reports some problems through the standard
// library logger; see logging.CaptureStdLog.
//
// # Usage
//
//	r := dicomfile.NewReader()
//	attrs, err := r.ReadFile("scan.dcm")
//	if errors.Is(err, dicomfile.ErrMissingAttribute) {
//	    // not usable as a study member
//	}
package dicomfile
