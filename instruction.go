package effection

// instructionKind is the closed tag of the Instruction sum type (§3). Every
// user-facing operation lowers to a sequence of these; the set is closed and
// small, dispatched with an exhaustive switch in frame.go rather than left
// open for extension.
type instructionKind int

const (
	instrSuspend instructionKind = iota
	instrAction
	instrResource
	instrSpawn
	instrGetScope
	instrEnsure
)

// Cleanup is an operation with no meaningful result, registered via
// Control.EnsureRaw (or the Ensure operation) and driven to completion (in reverse registration order)
// during frame teardown. Cleanup bodies may themselves suspend, spawn, or
// use any other primitive; they are run through the same evaluator as any
// other operation, just against an ephemeral frame created for teardown.
type Cleanup = Operation[struct{}]

// instruction is the payload sent from a frame's body goroutine to the
// dispatcher over the frame's yielded channel. Exactly one of the typed
// fields is meaningful, selected by kind.
type instruction struct {
	kind instructionKind

	// instrSuspend
	onInstall func(resume func(any, error))

	// instrSpawn: run on the dispatcher goroutine, creates+attaches the
	// child frame and returns its *Task[T] boxed as any.
	//
	// instrAction / instrResource: run on the dispatcher goroutine, creates
	// the managed child frame and wires its delivery into the parent's own
	// resumption; the parent stays parked (like instrSuspend) until then.
	spawnRun func() any

	// instrEnsure
	cleanup Cleanup
}

// resumeMsg is the payload sent from the dispatcher back to a frame's body
// goroutine over the frame's resumed channel, unblocking whichever Control
// method is currently parked.
type resumeMsg struct {
	value  any
	err    error
	halted bool
}
