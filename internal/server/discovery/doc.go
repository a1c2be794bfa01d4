// Package discovery announces a clipshare server on the local network
// and listens for such announcements.
//
// The Advertiser sends the JSON datagram
//
//	{"service":"clipshare","port":4243,"protocol":"https"}
//
// to the directed broadcast address of every usable IPv4 interface, once
// at start and then on a fixed interval. Nothing is read back. The Browser
// is the receiving side used by the CLI.
package discovery
