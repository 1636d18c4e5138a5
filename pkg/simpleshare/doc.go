// Package simpleshare provides an ephemeral content-sharing store: a bundle of
// text, images and files is bound to a short 4-digit key and can be retrieved
// or deleted by any holder of that key until a fixed two hour TTL elapses.
//
// The package exposes a single Service interface that orchestrates key
// allocation, payload persistence through a pluggable Repository, streaming of
// binary payloads through a pluggable BlobStore, expiry-gated retrieval and
// cascading deletion. Repository implementations (memory, Postgres, SQLite,
// MongoDB) and blob stores (memory, filesystem, S3, GridFS) are provided under
// subpackages.
//
// Expiry
//
// The read-time timestamp comparison is authoritative. Physical reclamation of
// expired rows and blobs (the reaper subpackage, or MongoDB TTL indexes) is a
// storage optimization only; the service never assumes it has already run.
package simpleshare
