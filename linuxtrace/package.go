// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package linuxtrace reads Linux perf.data trace files: a 104-byte file
// header (magic "PERFILE2"), an attributes section describing the events
// recorded, and a data section of records in file order (spec §3, §4.4).
//
// Opening a file starts with New or Open; File.Walk dispatches every
// record through a dispatch.Registry the way wintrace.File.Walk does for
// Windows traces, so tracecontext can build on one shared mechanism for
// both trace kinds.
package linuxtrace
