// Package remote defines the contract with the authoritative cloud document
// store and classifies its failures. The sync engine is written against the
// Store interface; production wires the Mongo implementation, tests wire the
// in-memory one.
package remote

import (
	"context"
	"time"
)

// Document is the wire form of a synced record. Data holds the full record
// payload as JSON text; Revision and UpdatedAt drive conflict detection and
// resolution.
type Document struct {
	ID        string    `bson:"_id"        json:"id"`
	Revision  int64     `bson:"revision"   json:"revision"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	DeviceID  string    `bson:"device_id"  json:"device_id"`
	Deleted   bool      `bson:"deleted"    json:"deleted"`
	Data      string    `bson:"data"       json:"data"`
}

// Store is the remote document store contract.
type Store interface {
	// Ping reports reachability; used for the online-status check.
	Ping(ctx context.Context) error

	Get(ctx context.Context, collection, id string) (*Document, error)

	// Upsert writes a document. The remote copy is replaced wholesale; the
	// caller has already resolved any conflict locally.
	Upsert(ctx context.Context, collection string, doc Document) error

	// ListChangedSince returns documents whose updated_at is strictly after
	// since, ascending, excluding those written by deviceID (a device never
	// downloads its own pushes).
	ListChangedSince(ctx context.Context, collection string, since time.Time, deviceID string) ([]Document, error)

	// CountChangedSince is the read-only query behind the toDownload count.
	CountChangedSince(ctx context.Context, collection string, since time.Time, deviceID string) (int, error)
}
