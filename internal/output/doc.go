// Package output persists downloaded result files.
//
// Files land at <root>/<studyKey>/<name>. Every study owns its own prefix,
// so concurrent writers for different studies never touch the same
// directory. The sink is a gocloud.dev/blob bucket: a fileblob bucket on
// disk in production, a memblob bucket in tests.
package output
