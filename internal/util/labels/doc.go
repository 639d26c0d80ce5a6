// Package labels provides consistent tagging for provider resource
// containers.
//
// Every container created by the tool carries the managed-by tag plus the
// deployment id and scenario it belongs to. Cleanup refuses to delete a
// container without the managed-by tag unless forced.
package labels
