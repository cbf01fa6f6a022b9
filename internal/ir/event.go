package ir

// EventKind names an audit event.
type EventKind string

const (
	EventRoleGranted      EventKind = "RoleGranted"
	EventRoleRevoked      EventKind = "RoleRevoked"
	EventRoleAdminChanged EventKind = "RoleAdminChanged"
	EventProgramScheduled EventKind = "ProgramScheduled"
	EventPulseRecorded    EventKind = "PulseRecorded"
	EventPulseAudited     EventKind = "PulseAudited"
	EventPulseExposed     EventKind = "PulseExposed"
	EventDecryptDelegated EventKind = "DecryptDelegated"
	EventEmblemMinted     EventKind = "EmblemMinted"
)

// EventKinds lists every kind in declaration order.
var EventKinds = []EventKind{
	EventRoleGranted, EventRoleRevoked, EventRoleAdminChanged,
	EventProgramScheduled, EventPulseRecorded, EventPulseAudited,
	EventPulseExposed, EventDecryptDelegated, EventEmblemMinted,
}

// Event is one entry in the append-only audit log.
//
// PulseID, ProgramID and Account are the indexed fields; zero / empty means
// the event does not carry that field. Fields holds the full payload.
// PrevHash and Hash chain every event to its predecessor.
type Event struct {
	Seq       int64     `json:"seq"`
	OpToken   string    `json:"op_token"`
	Kind      EventKind `json:"kind"`
	PulseID   uint64    `json:"pulse_id,omitempty"`
	ProgramID uint64    `json:"program_id,omitempty"`
	Account   string    `json:"account,omitempty"`
	Actor     string    `json:"actor"`
	Fields    Object    `json:"fields"`
	At        int64     `json:"at"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// GenesisHash is the PrevHash of the first event.
const GenesisHash = "genesis"
