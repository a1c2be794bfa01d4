// Package domain defines the core domain models for clipshare.
//
// Domain models are plain values without IO dependencies. This package
// contains:
//
//   - Entry: a stored clipboard payload and its MIME representations
//   - Draft: an incoming payload before it is stored
//   - PeerMessage: the frame pushed to connected peers
//   - Announcement: the LAN discovery datagram
//   - Errors: domain error codes shared by every layer
package domain
