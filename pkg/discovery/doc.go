// Package discovery finds NXT bricks on the local network.
//
// A brick is identified by a name and a 12-digit hardware address. The
// address may be written with or without colons and in any case;
// NormalizeAddress turns it into the canonical bare uppercase form
// (00:16:53:1b:59:4d becomes 0016531B594D).
//
// # mDNS (_nxblue._tcp)
//
// Devices advertise one service instance whose name is the brick name.
// TXT records:
//   - MA: hardware address (required)
//   - FR: message framing, "line" or "utf" (optional, default line)
//   - VN: protocol version (optional)
//
// # Static peers
//
// Discovery over wireless links is slow and unreliable, so pairings that
// are known in advance can be listed in a StaticTable. A StaticTable is
// itself a Browser and can be combined with an MDNSBrowser.
//
// # Search
//
// Search collects peers from a Browser until its context ends and keeps
// those whose name contains a substring. Matching is plain containment:
// no wildcards, no case folding.
package discovery
