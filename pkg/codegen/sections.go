package codegen

import (
	"fmt"

	"wisp/pkg/config"
)

// SectionAllocator bumps an offset through each configured section.
// Explicit-org placements bypass it; everything else gets the next free
// address of its section.
type SectionAllocator struct {
	cfg     *config.MemoryConfig
	offsets map[string]int
}

func NewSectionAllocator(cfg *config.MemoryConfig) *SectionAllocator {
	return &SectionAllocator{cfg: cfg, offsets: make(map[string]int)}
}

// Allocate returns the address of the next size bytes in the named section.
func (a *SectionAllocator) Allocate(section string, size int) (uint16, error) {
	s, ok := a.cfg.Find(section)
	if !ok {
		return 0, fmt.Errorf("unknown section %q", section)
	}
	at := int(s.Start) + a.offsets[section]
	if at+size-1 > int(s.End) {
		return 0, &SectionOverflowError{Section: section, Need: size, At: uint16(at), End: s.End}
	}
	a.offsets[section] += size
	return uint16(at), nil
}

// Remaining returns the free bytes left in the named section.
func (a *SectionAllocator) Remaining(section string) int {
	s, ok := a.cfg.Find(section)
	if !ok {
		return 0
	}
	return s.Size() - a.offsets[section]
}

// SectionStats is the usage summary of one section.
type SectionStats struct {
	Name  string
	Used  int
	Total int
}

// Percent returns the used fraction as a percentage.
func (s SectionStats) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Used) * 100 / float64(s.Total)
}

func (s SectionStats) String() string {
	return fmt.Sprintf("%s: %d/%d bytes (%.1f%%)", s.Name, s.Used, s.Total, s.Percent())
}

// Stats returns per-section usage in configuration order.
func (a *SectionAllocator) Stats() []SectionStats {
	out := make([]SectionStats, 0, len(a.cfg.Sections))
	for _, s := range a.cfg.Sections {
		out = append(out, SectionStats{Name: s.Name, Used: a.offsets[s.Name], Total: s.Size()})
	}
	return out
}
