// Package model defines the data shared by the crawler, the stores and the
// reports: Comment rows, target ids, update-time year resolution, the
// PageResult enumeration and RunSummary.
package model
