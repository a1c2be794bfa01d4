// Package storage provides the persistent clipboard entry store for clipshare.
//
// Entries live in an embedded Badger database. Badger writes every
// transaction to its value log before acknowledging it, and with
// SyncWrites enabled the log is fsynced, so an acknowledged Add or Delete
// survives a crash.
//
// Key layout:
//
//   - e/<id>           entry record (CBOR)
//   - h/<hash>         content hash -> id
//   - t/<ts><seq>      recency index -> id, big-endian so byte order is time order
//   - m/seq            last issued stamp sequence
//
// All mutations go through a single writer lock, which makes the
// dedup-or-insert decision and the eviction that follows it atomic with
// respect to other writers. Reads run in Badger snapshot transactions and
// never block on the writer.
package storage
