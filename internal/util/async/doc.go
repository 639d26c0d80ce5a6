// Package async provides bounded parallel task execution with error
// collection.
//
// [RunParallel] executes a set of named operations with a concurrency limit
// and returns every failure joined together. A failing task never cancels
// its siblings. It backs batch submission, parallel status polling and
// parallel cleanup.
package async
