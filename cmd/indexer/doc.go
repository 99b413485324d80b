// Package main hosts the sitemap indexer entrypoint.
//
// A run resolves the configured sitemap (following nested indexes), queues every page URL, and drains
// the queue with a fixed worker pool. Each worker skips pages whose sitemap lastmod, HTTP validators,
// or extracted-text fingerprint show no change; changed pages are chunked, embedded through Gemini,
// and upserted into the vector index, with chunk ids left over from a longer previous version pruned.
// The run ends with a JSON report written to the configured blob store, a summary on stdout, and an
// optional Pub/Sub notification.
//
// Operational notes:
//   - Crawl state lives in badger (default), Postgres, or memory; the vector index is pgvector or memory.
//   - Per-URL failures never fail the run. The exit code is non-zero only when configuration, wiring,
//     sitemap resolution, or index provisioning fails, or when the run is interrupted.
//   - Configure with -config config.yaml and/or INDEXER_* environment variables; a .env file in the
//     working directory is loaded first.
//   - Run locally: go run ./cmd/indexer -config config.yaml
package main
