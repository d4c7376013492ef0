// Package internal documents the aggregator internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, and routing
// - domain: catalog models and query logic
// - storage: database access and repositories (pgx + Postgres)
// - upstream, importer, jobs: root server ingestion and scheduling
// - semantic: the query service and its renderers
// - config, metrics, telemetry, geocoding: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
