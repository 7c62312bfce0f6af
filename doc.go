// Package imap provides the small IMAP client that imap-flagsync drives.
//
// It covers exactly what flag reconciliation needs:
//
//   - Connecting in plain text, with STARTTLS, or over implicit TLS
//     (optionally through the proxy named by ALL_PROXY)
//   - Authenticating with LOGIN or XOAUTH2 (OAuth 2.0)
//   - Listing folders, selecting/examining them, and closing them
//   - Searching by flag or keyword, storing flags on whole message sets,
//     and fetching header overviews for listings
//
// Mailbox names are passed on the wire form; see the utf7 package for the
// conversion to and from display names. A Dialer runs one command at a time
// and is not safe for concurrent use.
package imap
