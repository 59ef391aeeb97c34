package codegen

import "fmt"

// StringCollector interns string literals used by the program. Identical
// contents share one label; the data pass emits each entry once as a
// 2-byte little-endian length followed by the bytes.
type StringCollector struct {
	labels map[string]string
	order  []string
}

func NewStringCollector() *StringCollector {
	return &StringCollector{labels: make(map[string]string)}
}

// Intern returns the data label for the given contents, creating one on
// first use.
func (c *StringCollector) Intern(s string) string {
	if label, ok := c.labels[s]; ok {
		return label
	}
	label := fmt.Sprintf("str_%d", len(c.order))
	c.labels[s] = label
	c.order = append(c.order, s)
	return label
}

// Empty reports whether nothing was interned.
func (c *StringCollector) Empty() bool { return len(c.order) == 0 }

// Emit writes every interned string as data.
func (c *StringCollector) Emit(e *Emitter) {
	for _, s := range c.order {
		e.label(c.labels[s])
		n := len(s)
		e.directive(".byte $%02X, $%02X", n&0xFF, (n>>8)&0xFF)
		for i := 0; i < n; i += 8 {
			end := i + 8
			if end > n {
				end = n
			}
			bytes := ""
			for j := i; j < end; j++ {
				if bytes != "" {
					bytes += ", "
				}
				bytes += fmt.Sprintf("$%02X", s[j])
			}
			e.directive(".byte %s", bytes)
		}
	}
}

// Size returns the emitted size of all interned strings in bytes.
func (c *StringCollector) Size() int {
	total := 0
	for _, s := range c.order {
		total += 2 + len(s)
	}
	return total
}
