// Package crawler implements the quote crawl pipeline: single-pass page
// scanning, author resolution with per-session deduplication, and shaping of
// the results into flat rows for the output sinks.
package crawler
