// Package integration exercises the aggregator end to end: a PostGIS
// container, the real repository stack, the HTTP surface, and a fake
// BMLT root server the importer pulls from.
//
// The database container is shared across the package and reused by
// name across runs; every test starts from truncated tables. River
// workers only run inside the scheduler flow test, so the rest of the
// suite stays free of queue startup overhead.
package integration
