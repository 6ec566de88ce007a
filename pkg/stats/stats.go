// Package stats tracks per-category conversion outcomes for a single run.
// The accumulator is created at the start of a conversion, threaded through
// the loader and converters, rendered at the end, and discarded.
package stats

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Category identifies one class of entity being converted.
type Category string

// Conversion categories
const (
	CategoryPlugins  Category = "Plugins"
	CategoryCommands Category = "Commands"
	CategoryPrompts  Category = "Prompts"
	CategoryAgents   Category = "Agents"
	CategorySkills   Category = "Skills"
	CategoryMCP      Category = "MCP"
	CategoryBackups  Category = "Backups"
)

// Outcome identifies what happened to an entity during a run.
type Outcome string

// Entity outcomes
const (
	Detected  Outcome = "detected"
	Converted Outcome = "converted"
	Skipped   Outcome = "skipped"
	Failed    Outcome = "failed"
)

var categoryOrder = []Category{
	CategoryPlugins,
	CategoryCommands,
	CategoryPrompts,
	CategoryAgents,
	CategorySkills,
	CategoryMCP,
	CategoryBackups,
}

type counts struct {
	detected  int
	converted int
	skipped   int
	failed    int
}

// Statistics accumulates detected/converted/skipped/failed tallies per
// category. It is not safe for concurrent use; conversion runs are
// single-threaded.
type Statistics struct {
	tallies map[Category]*counts
	extra   []Category
}

// New returns an empty accumulator with all standard categories present.
func New() *Statistics {
	s := &Statistics{tallies: make(map[Category]*counts, len(categoryOrder))}
	for _, cat := range categoryOrder {
		s.tallies[cat] = &counts{}
	}
	return s
}

// Record increments the tally for one outcome in a category.
func (s *Statistics) Record(category Category, outcome Outcome) {
	s.RecordN(category, outcome, 1)
}

// RecordN increments the tally for one outcome in a category by n.
func (s *Statistics) RecordN(category Category, outcome Outcome, n int) {
	c, ok := s.tallies[category]
	if !ok {
		c = &counts{}
		s.tallies[category] = c
		s.extra = append(s.extra, category)
	}

	switch outcome {
	case Detected:
		c.detected += n
	case Converted:
		c.converted += n
	case Skipped:
		c.skipped += n
	case Failed:
		c.failed += n
	}
}

// Get returns the tally for one outcome in a category.
func (s *Statistics) Get(category Category, outcome Outcome) int {
	c, ok := s.tallies[category]
	if !ok {
		return 0
	}
	switch outcome {
	case Detected:
		return c.detected
	case Converted:
		return c.converted
	case Skipped:
		return c.skipped
	case Failed:
		return c.failed
	}
	return 0
}

// Merge folds another accumulator into this one.
func (s *Statistics) Merge(other *Statistics) {
	for _, cat := range other.orderedCategories() {
		c := other.tallies[cat]
		s.RecordN(cat, Detected, c.detected)
		s.RecordN(cat, Converted, c.converted)
		s.RecordN(cat, Skipped, c.skipped)
		s.RecordN(cat, Failed, c.failed)
	}
}

func (s *Statistics) orderedCategories() []Category {
	cats := make([]Category, 0, len(s.tallies))
	cats = append(cats, categoryOrder...)
	cats = append(cats, s.extra...)
	return cats
}

// Render writes the summary table.
func (s *Statistics) Render(w io.Writer) error {
	rule := strings.Repeat("=", 65)
	if _, err := fmt.Fprintln(w, rule); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tDETECTED\tSUCCESS\tSKIPPED\tFAILED")
	for _, cat := range s.orderedCategories() {
		c := s.tallies[cat]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", cat, c.detected, c.converted, c.skipped, c.failed)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintln(w, rule)
	return err
}
