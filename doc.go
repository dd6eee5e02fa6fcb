// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package effection provides a structured-concurrency runtime for Go: a
// single-threaded cooperative scheduler whose unit of work is an Operation
// (a lazy, restartable description of an asynchronous computation) and whose
// unit of execution is a Task bound to a hierarchical Scope.
//
// # Architecture
//
// The runtime is built around a [dispatcher] that drains a FIFO queue of
// closures, one at a time, on a single goroutine. Every [Operation] body runs
// on its own goroutine and rendezvouses with the dispatcher over a pair of
// unbuffered channels exposed through a [Control] handle; see the package's
// DESIGN.md for why this is the idiomatic Go encoding of a generator-style
// coroutine. At most one goroutine is ever doing anything other than waiting
// on a channel receive, which is what makes the scheduler single-threaded
// cooperative even though it is implemented with real goroutines.
//
// [Scope] values form a tree. Every frame (the live activation of an
// Operation) is attached to exactly one scope. A scope that terminates halts
// every attached frame and child scope, in reverse attachment order, waiting
// for each to finish tearing down before halting the next. An error in any
// attached frame promotes to its scope, which transitions to the error state
// and halts its remaining children.
//
// # Primitives and combinators
//
// [Suspend], [Action], [Resource], and [Spawn] are the only irreducible
// building blocks; [All], [AllSettled], [Race], [Any], [Call],
// [WithTimeout], and [Sleep] are all expressed in terms of them.
//
// # Channels
//
// [CreateChannel] returns a port/stream pair for multi-subscriber value
// distribution with scope-bound teardown; [CreateSignal] bridges host
// callback code (outside the operation tree) into a channel.
//
// # Usage
//
//	task, err := effection.Run(func(c *effection.Control) (int, error) {
//	    return 42, nil
//	})
//	v, err := task.Result()
package effection
