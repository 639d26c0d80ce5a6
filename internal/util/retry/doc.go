// Package retry provides exponential backoff retry logic for transient failures.
//
// [WithExponentialBackoff] retries an operation with configurable max retries,
// initial delay, multiplier and maximum delay. It backs provider reads, status
// polls, container deletions and workload connects. Submissions are never
// retried.
package retry
