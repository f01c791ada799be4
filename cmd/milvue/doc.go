// Command milvue sends DICOM studies to the Milvue inference service and
// writes the returned files to disk.
//
// Usage:
//
//	milvue run [flags] <paths...>      upload, wait and download
//	milvue status [flags] <studyKey>   show the processing status of a study
//	milvue fetch [flags] <studyKey>    download results of a predicted study
//	milvue version
//
// Exit codes:
//
//	0  success
//	1  general error
//	2  invalid arguments or configuration
//	3  no usable input path
//	4  studies failed and --fail-on-study-error is set
package main
