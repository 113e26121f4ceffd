// Package domain holds the core entities of the lending coordinator:
// loan requests and their state machine, loans with their active interval,
// chats keyed by (item, borrower), and chat messages.
//
// The package also defines the error taxonomy shared by all layers:
//   - NotFoundError: entity absent, or excluded by the caller's scope filter
//   - ConflictError: duplicate active request, overlapping loan interval,
//     chat-creation race, already-inactive loan
//   - StateError: invalid transition, carries expected vs. actual state
//   - ValidationError: malformed or out-of-range input
//
// All types here are plain data; persistence and coordination live in the
// postgres and coordinator packages.
package domain
