// Package pipeline runs crawl jobs through a sequence of steps.
//
// A job goes through SkipRecentStep, CrawlStep, SaveStep and ReportStep;
// each step reads and updates the shared Job. Save and report steps are
// final: they still run after cancellation so an interrupted crawl keeps
// its partial result. BatchProcessor runs several jobs concurrently with
// an errgroup limit.
package pipeline
