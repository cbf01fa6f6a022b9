// Package harness runs YAML scenarios against a real ledger.
//
// # Scenario Format
//
//	name: emblem_lifecycle
//	description: "Approved pulses earn exactly one emblem"
//	admin: "0xadmin"
//	time: 1700000000
//	setup:
//	  - op: grant_role
//	    as: "0xadmin"
//	    args: { role: CURATOR, account: "0xcurator" }
//	flow:
//	  - op: record_pulse
//	    as: "0xpilot"
//	    args: { exposure: revealed, latency_ms: 180, payload: "run-1" }
//	    expect:
//	      result: { pulse_id: 1 }
//	  - op: mint_emblem
//	    as: "0xcurator"
//	    args: { pulse_id: 1, to: "0xpilot" }
//	    expect:
//	      error: NOT_VALIDATED
//	assertions:
//	  - type: trace_count
//	    kind: EmblemMinted
//	    count: 0
//	  - type: final_state
//	    table: pulses
//	    where: { id: 1 }
//	    expect: { validated: 0 }
//	  - type: chain_intact
//
// Setup steps must succeed. Flow steps record their outcome; a step with an
// expect clause fails the scenario when the outcome differs.
//
// # Assertion Types
//
//   - trace_contains: an audit event of kind whose fields include fields
//   - trace_order: the first events of kinds appear in that order
//   - trace_count: exactly count events of kind
//   - final_state: one row of a ledger table matches expect
//   - chain_intact: the hash chain verifies
//   - replay_consistent: replaying the log reproduces the stored tables
//
// # Determinism
//
// Every run uses a fresh database, a manual clock starting at the scenario's
// time, sequential operation tokens and a fixed-seed sealing engine, so the
// trace is byte-identical across runs and can be compared to golden files.
package harness
