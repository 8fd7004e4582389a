// Package cmn provides small low-level utilities shared by every s3copy package:
// assertions, typed engine errors, and ETag normalization.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "fmt"

// Assert panics if cond is false. Reserved for invariants the engine itself
// must never violate (as opposed to errors returned by the object store).
func Assert(cond bool) {
	if !cond {
		panic("assertion failed")
	}
}

func AssertMsg(cond bool, msg string) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: %s", msg))
	}
}
