package domain

// MessageTypeNewEntry tags a frame announcing a freshly stored entry.
const MessageTypeNewEntry = "new_entry"

// PeerMessage is the JSON frame pushed over peer channels.
type PeerMessage struct {
	Type  string `json:"type"`
	Entry *Entry `json:"entry"`
}

// NewEntryMessage wraps an entry for fan-out.
func NewEntryMessage(e *Entry) PeerMessage {
	return PeerMessage{Type: MessageTypeNewEntry, Entry: e}
}

// ServiceName identifies clipshare discovery datagrams.
const ServiceName = "clipshare"

// Announcement is the discovery datagram broadcast on the LAN.
type Announcement struct {
	Service  string `json:"service"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
}

// Valid reports whether the announcement came from a clipshare node.
func (a Announcement) Valid() bool {
	return a.Service == ServiceName && a.Port > 0 && a.Port <= 65535 && a.Protocol != ""
}
