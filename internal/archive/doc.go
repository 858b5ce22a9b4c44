// Package archive persists the analytics views the dashboard renders.
//
// Views are queued by Record on the event loop and written in batches to the
// analytics_snapshots table by Run. The table is append-only; every row gets
// its own UUID so a retried batch never duplicates.
package archive
