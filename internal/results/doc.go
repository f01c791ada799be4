// Package results fetches and stores the outputs of a processed study.
//
// A [Fanout] issues one download per requested parameter set, all at once,
// decodes each multipart response and writes every part under the study's
// output prefix, named after the SOPInstanceUID found inside the part. A
// response without a boundary is logged as "no output" and is not an error.
// Sets are independent: one failing never cancels its siblings, and Run
// returns only after all of them have finished.
package results
