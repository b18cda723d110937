// Package block defines the planner's queued motion primitive and the
// runtime's transient per-segment output, per the data model. The
// donor's standalone.Move (a single trapezoidal move struct with fixed
// X/Y/Z/E fields) is generalized here to six machine axes and a tagged
// move-type variant, following the design notes' "function-pointer
// callbacks inside queue entries" strategy: a tag plus a match in the
// runtime, rather than a stored callback pointer inside the block.
package block

// NumAxes is the number of coordinated machine axes a block carries.
const NumAxes = 6

// MoveType tags what kind of primitive a Block represents.
type MoveType int

const (
	Empty MoveType = iota
	Line
	Dwell
	SyncCommand
	Stop
)

// State is a Block's lifecycle stage.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateQueued
	StatePending
	StateRunning
)

// Vec is a six-axis coordinate or vector, one component per logical
// axis (X,Y,Z,A,B,C).
type Vec [NumAxes]float64

// Sub returns a - b component-wise.
func (a Vec) Sub(b Vec) Vec {
	var out Vec
	for i := range out {
		out[i] = a[i] - b[i]
	}
	return out
}

// CommandCallback is invoked by the runtime at the start of a
// SyncCommand block, with the captured parameter vectors.
type CommandCallback func(values, flags Vec)

// Block is one queued motion primitive.
type Block struct {
	MoveType MoveType
	State    State

	Target Vec // machine coordinates, canonical mm
	Unit   Vec // unit vector along the move
	Length float64 // signed length, canonical mm

	MoveTime float64 // computed move time, seconds
	Jerk     float64 // worst-case per-axis jerk, canonical mm/min^3

	HeadLength float64
	BodyLength float64
	TailLength float64

	EntryVelocity float64
	CruiseVelocity float64
	ExitVelocity  float64

	EntryVmax  float64
	CruiseVmax float64
	ExitVmax   float64

	// BrakingVelocity is an upper bound on entry velocity computed from
	// exit_vmax plus the deceleration available over Length; used by
	// the backward look-ahead pass.
	BrakingVelocity float64

	Replannable bool

	// Dwell
	DwellSeconds float64

	// SyncCommand
	Callback  CommandCallback
	ValueVec  Vec
	FlagVec   Vec
}

// Reset returns a Block to the Empty state, ready for reuse.
func (b *Block) Reset() {
	*b = Block{}
}

// Segment is the runtime's transient, one-at-a-time output: a short,
// fixed-duration slice of a running block emitted and consumed before
// the next segment is prepared.
type Segment struct {
	Target      Vec      // canonical machine coordinates at segment end
	SegmentUsec uint32   // segment duration, microseconds
	StepCounts  [NumAxes]int32 // per-motor step counts for this segment (signed)
	PositionEnd Vec      // position reached at segment end
}

// RuntimePosition (mr) is the runtime model's authoritative position:
// the tool's coordinates as of the last completed segment, the
// in-flight segment's target, and the owning block's final endpoint
// (used to correct accumulated round-off once the block is exhausted).
type RuntimePosition struct {
	Position      Vec // as of last segment completion
	SegmentTarget Vec // currently executing segment's end coordinates
	BlockEndpoint Vec // the running block's final endpoint
}
