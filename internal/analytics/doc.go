// Package analytics holds the dashboard's current analytics view.
//
// Two sources feed it: a REST snapshot fetched at startup (and on reload) and
// the push stream. Once a push snapshot has been applied, REST snapshots are
// ignored until Reset. Among pushes the later arrival wins.
package analytics
