// Package logging builds the zap logger used across a run.
//
// The logger is constructed once from [Options] and passed explicitly to
// every component; nothing here installs a global logger. Timestamps are
// off unless requested, and the quiet level returns a no-op logger.
//
// The DICOM parser logs through the standard library logger. Commands call
// [CaptureStdLog] so those lines reach the zap logger at debug level
// instead of stderr.
package logging
