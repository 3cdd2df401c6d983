package symbolresolve

import "strings"

// PrefixRule replaces a module filename prefix before it is shown to the
// user (spec §6.2 PathMapper), e.g. mapping a build machine's checkout
// path to a prefix meaningful to the person reading the trace.
type PrefixRule struct {
	From string
	To   string
}

// PathMapper applies an ordered list of prefix-replacement rules to a
// module filename. The core's own NT-device-to-DOS-drive normalization
// (tracecontext.PathNormalizer) always runs before a PathMapper sees the
// path, per spec §6.2's ordering.
type PathMapper struct {
	rules []PrefixRule
}

// NewPathMapper returns a PathMapper applying rules in order; the first
// rule whose From is a prefix of the input wins.
func NewPathMapper(rules []PrefixRule) *PathMapper {
	return &PathMapper{rules: rules}
}

// Map rewrites filename by the first matching rule, or returns it
// unchanged if no rule's prefix matches.
func (m *PathMapper) Map(filename string) string {
	for _, r := range m.rules {
		if strings.HasPrefix(filename, r.From) {
			return r.To + filename[len(r.From):]
		}
	}
	return filename
}
