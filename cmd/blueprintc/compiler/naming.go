package compiler

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// namer maps node ids to unique Go identifier stems. Stems are assigned in
// id order so the mapping is deterministic.
type namer struct {
	stems map[string]string
}

func newNamer(ids []string) *namer {
	n := &namer{stems: make(map[string]string, len(ids))}
	taken := make(map[string]bool, len(ids))
	for _, id := range ids {
		base := sanitize(id)
		stem := base
		for i := 2; taken[stem]; i++ {
			stem = fmt.Sprintf("%s_%d", base, i)
		}
		taken[stem] = true
		n.stems[id] = stem
	}
	return n
}

// value names the variable holding a node's output.
func (n *namer) value(id string) string { return "n_" + n.stems[id] }

// run names the closure of a join node.
func (n *namer) run(id string) string { return "run_" + n.stems[id] }

// sanitize keeps ASCII letters, digits and underscores and replaces
// everything else with an underscore.
func sanitize(id string) string {
	var sb strings.Builder
	for _, r := range id {
		switch {
		case r >= utf8.RuneSelf:
			sb.WriteByte('_')
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		return "_"
	}
	return sb.String()
}
