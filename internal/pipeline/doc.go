// Package pipeline runs batch mode: a list of targets, each carried
// through a short sequence of steps.
//
// A Pipeline handles one target. Its regular steps (skip check, crawl) run
// in order and stop at the first error; its final steps (run history) run
// afterwards even when the crawl failed or the context was cancelled.
//
// BatchProcessor walks the targets strictly one after another, in groups
// with a long randomized pause between groups, so a single proxy pool and
// the forum host only ever see one crawl at a time.
package pipeline
