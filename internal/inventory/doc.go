// Package inventory turns a flat list of files into studies.
//
// A [Builder] reads the study and instance keys of every file through an
// [AttributeReader] and groups files by study key. Bad input never aborts
// the build: unreadable files, files missing a key, outputs previously
// produced by the service (instance keys under [ServiceUIDRoot]) and repeated
// instance keys are each skipped with a warning. The first file seen for an
// instance key wins.
//
// # Usage
//
//	paths, err := inventory.Discover([]string{"./scans"}, true)
//	inv := inventory.NewBuilder(dicomfile.NewReader(), logger).Build(paths)
//	if inv == nil {
//	    // nothing to do
//	}
//	for _, study := range inv.Studies() {
//	    ...
//	}
package inventory
