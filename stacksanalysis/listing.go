package stacksanalysis

import (
	"sort"

	"github.com/gopherprof/tracecore/tracemodel"
)

// SortKey selects the ordering for ListFunctions.
type SortKey int

const (
	SortByName SortKey = iota
	SortByTotal
	SortBySelf
)

// ListFunctions returns one page of the analysis's non-root functions,
// ordered by key for the given sample source, with a stable secondary
// order by function id (spec §4.7 "Sorting and paging"). offset and
// limit behave like a SQL LIMIT/OFFSET; a limit <= 0 returns every
// remaining function from offset.
func (a *Analysis) ListFunctions(source tracemodel.SampleSourceID, key SortKey, offset, limit int) []*FunctionEntry {
	all := make([]*FunctionEntry, 0, len(a.Functions)-1)
	for _, f := range a.Functions {
		if f.ID == RootFunction {
			continue
		}
		all = append(all, f)
	}

	less := func(i, j int) bool {
		fi, fj := all[i], all[j]
		switch key {
		case SortByTotal:
			ti, tj := hitsTotal(fi, source), hitsTotal(fj, source)
			if ti != tj {
				return ti > tj
			}
		case SortBySelf:
			si, sj := hitsSelf(fi, source), hitsSelf(fj, source)
			if si != sj {
				return si > sj
			}
		default:
			if fi.Name != fj.Name {
				return fi.Name < fj.Name
			}
		}
		return fi.ID < fj.ID
	}
	sort.SliceStable(all, less)

	if offset >= len(all) {
		return nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}

func hitsTotal(f *FunctionEntry, source tracemodel.SampleSourceID) int {
	if c, ok := f.Hits[source]; ok {
		return c.Total
	}
	return 0
}

func hitsSelf(f *FunctionEntry, source tracemodel.SampleSourceID) int {
	if c, ok := f.Hits[source]; ok {
		return c.Self
	}
	return 0
}
