// Package cli provides the interactive GophNotes command-line client.
//
// It wires configuration, the encrypted local store, the sync engine and an
// interactive REPL. Notes are always written locally first; while a session
// is active the client syncs in the background whenever the note changes
// locally or the server reports a change from another device.
//
// Key features:
//   - Register / Login / Logout (optionally wiping local data)
//   - Notes: add, show, edit, rename, delete, lock, tags and colors
//   - Sync on demand, conflict listing, diff and resolution
//   - Publishing notes as monographs and viewing public monographs
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
