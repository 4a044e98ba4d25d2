// Package store persists crawled comments as one append-only CSV file per
// target. A crawl appends after every page with matches, so a partial run
// leaves a usable file behind.
package store
