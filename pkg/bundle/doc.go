// Package bundle encodes and decodes the multipart/related bodies used to
// move DICOM instances to and from the inference service.
//
// # Encoding
//
// [Encode] streams a list of [Source] values through an io.Pipe, so an
// upload never holds more than one file's buffer in memory. Each part
// carries a Content-Disposition filename of the form <instance>.dcm
// (see [PartName]) and a Content-Type of application/dicom unless
// overridden.
//
// # Decoding
//
// [Decode] reads a whole response into [Part] values. The boundary comes
// from the response Content-Type; a response without one means the service
// produced nothing, and Decode returns no parts and no error. A body cut off
// before the closing delimiter is an error, never a partial result.
//
// # Wire Format
//
//	Content-Type: multipart/related; boundary=XYZ; type="application/dicom"
//
//	--XYZ
//	Content-Disposition: attachment; filename="1.2.3.4.dcm"
//	Content-Type: application/dicom
//
//	<DICOM Part 10 bytes>
//	--XYZ--
//
// See example_test.go for usage examples.
package bundle
