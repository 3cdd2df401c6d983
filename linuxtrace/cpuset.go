// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linuxtrace

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gopherprof/tracecore/internal/traceerr"
)

// CPUSet is a sorted, deduplicated set of CPU indices, as recorded in
// a perf.data topology feature section (perf's own textual range
// syntax: "0-3,7,9-11").
type CPUSet []int

// parseCPUSet decodes perf's comma-separated list of CPU indices and
// inclusive ranges into a sorted CPUSet.
func parseCPUSet(str string) (CPUSet, error) {
	var out CPUSet
	for _, term := range strings.Split(str, ",") {
		lo, hi, err := parseCPURange(term)
		if err != nil {
			return nil, traceerr.Wrap(traceerr.MalformedContainer, err, "parsing CPU set %q", str)
		}
		for cpu := lo; cpu <= hi; cpu++ {
			out = append(out, cpu)
		}
	}
	sort.Ints(out)
	return dedupSorted(out), nil
}

// parseCPURange parses one comma-separated term of a CPU set: either a
// single index ("7") or an inclusive range ("9-11").
func parseCPURange(term string) (lo, hi int, err error) {
	if dash := strings.Index(term, "-"); dash != -1 {
		lo, err = strconv.Atoi(term[:dash])
		if err != nil {
			return 0, 0, err
		}
		hi, err = strconv.Atoi(term[dash+1:])
		return lo, hi, err
	}
	lo, err = strconv.Atoi(term)
	return lo, lo, err
}

// dedupSorted collapses adjacent duplicates in an already-sorted
// slice, in place.
func dedupSorted(sorted CPUSet) CPUSet {
	j := 0
	for i := range sorted {
		if i > 0 && sorted[i] == sorted[j-1] {
			continue
		}
		sorted[j] = sorted[i]
		j++
	}
	return sorted[:j]
}

// String renders a CPUSet back into perf's range syntax.
func (c CPUSet) String() string {
	if len(c) == 0 {
		return ""
	}

	var b strings.Builder
	lo, hi := c[0], c[0]-1
	flush := func() {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if lo == hi {
			fmt.Fprintf(&b, "%d", lo)
		} else {
			fmt.Fprintf(&b, "%d-%d", lo, hi)
		}
	}
	for _, cpu := range c {
		if cpu == hi+1 {
			hi = cpu
			continue
		}
		flush()
		lo, hi = cpu, cpu
	}
	flush()
	return b.String()
}
