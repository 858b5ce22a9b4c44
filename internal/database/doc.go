// Package database opens the PostgreSQL pool used by the snapshot archive.
package database
