// Package cli implements smsrelay-admin, a cobra command tree for editing
// the relay's directory offline.
//
// Commands open the SQLite database named by --db or by the config file and
// print tables, or indented JSON with --format json:
//
//	smsrelay-admin contacts add "Jane Doe" +15559876543
//	smsrelay-admin groups create Friends -d "Close friends"
//	smsrelay-admin groups add Friends "Jane Doe" +15551234567
//	smsrelay-admin bindings +15559876543
//	smsrelay-admin broadcasts list -n 5
//	smsrelay-admin seed
package cli
