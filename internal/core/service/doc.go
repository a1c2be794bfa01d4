// Package service provides domain services for clipshare.
//
// EntryService is the single path every clipboard payload takes: it
// validates the draft, stores it through an EntryRepository, and hands
// genuinely new entries to a Publisher for fan-out. Storage and delivery
// are interfaces so that handlers and tests can inject their own.
package service
