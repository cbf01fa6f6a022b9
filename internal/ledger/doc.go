// Package ledger implements the pulse ledger state machine.
//
// A Ledger wraps a store.Store and an oracle.Oracle behind one facade that
// exposes every ledger operation:
//
//   - access control: Initialize, GrantRole, RevokeRole, RenounceRole,
//     SetRoleAdmin, HasRole, RoleAdmin, RoleMembers
//   - programs: ScheduleProgram, ViewProgram, ProgramCount, ListPrograms
//   - pulses: RecordPulse, AuditPulse, ExposePulse, DelegateDecrypt,
//     ViewPulse, SealedPulseValue, PulseCount, ListPulses
//   - sealed values: ReadSealedValue, DecryptionGrants, CanDecrypt, Decrypt
//   - emblems: MintEmblemForPulse, ViewEmblem, EmblemCollection
//   - audit log: Events, VerifyChain, Replay, Snapshot
//
// # Serialization
//
// Mutations are serialized by a mutex and each runs in one store
// transaction together with the events it emits. A mutation either commits
// completely or leaves nothing behind: no state change, no consumed id, no
// event. Role checks and proof verification happen inside that transaction.
//
// Reads do not take the mutex and observe committed state only.
//
// # Subscribers
//
// After a mutation commits, its events are passed to every registered
// Subscriber in seq order, still under the mutation lock. Subscribers must
// not call back into mutating Ledger methods.
package ledger
