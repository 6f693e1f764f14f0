// The main package for the catalogsync executable.
//
// Architecture overview:
//   - Discovery: internal/discovery.Walker fetches category listing pages
//     through the retrying Colly fetcher, follows subcategories and
//     pagination under per-category completion policies, and emits
//     deduplicated product URLs.
//   - Queue: internal/queue batches discovered URLs into messages and
//     moves them over Google Cloud Pub/Sub between processes, or an
//     in-memory queue for single-process runs.
//   - Extraction: internal/extract runs a bounded worker pool over queued
//     URLs, parses product pages via the site package, and yields tagged
//     per-URL outcomes with at-most-one successful extraction per URL.
//   - Sync: internal/syncer resolves brands and category mappings, then
//     writes idempotent upserts through the pgx-backed item store,
//     finishing full runs with the availability sweep.
//   - Plumbing: Viper config with CATALOG_ env overrides, zap structured
//     logging, Prometheus metrics on a chi router, cobra subcommands.
package main

import (
	"github.com/grupo-alas/catalog-sync/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
