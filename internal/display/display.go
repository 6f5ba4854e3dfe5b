// Package display projects a lane-annotated event stream into the items a
// renderer draws: collapsed tasks, paired calls and grouped runs.
package display

import (
	"fmt"

	"hailog/internal/lane"
)

// ItemKind discriminates Item.
type ItemKind int

const (
	ItemEvent ItemKind = iota
	ItemPaired
	ItemGroup
	ItemCollapsedTask
)

func (k ItemKind) String() string {
	switch k {
	case ItemPaired:
		return "paired"
	case ItemGroup:
		return "group"
	case ItemCollapsedTask:
		return "collapsed-task"
	}
	return "event"
}

// Item is one entry of the display projection.
type Item struct {
	Kind ItemKind
	// Event is the item's primary event: the single event, the invocation
	// of a pair, the first member of a group or the TaskStart of a
	// collapsed task.
	Event lane.LaneEvent
	// Result is the outcome paired with Event.
	Result *lane.LaneEvent
	// Members holds the grouped items of an ItemGroup.
	Members  []Item
	GroupKey string
	Summary  string
	Task     *lane.TaskInfo
	Lane     int
}

// Count returns how many display items this item stands for.
func (it Item) Count() int {
	if it.Kind == ItemGroup {
		return len(it.Members)
	}
	return 1
}

// Mode selects how tasks are shown.
type Mode int

const (
	// ModeChronological expands every task except the toggled ones.
	ModeChronological Mode = iota
	// ModeSummaryStart collapses every task except the toggled ones.
	ModeSummaryStart
)

func (m Mode) String() string {
	if m == ModeSummaryStart {
		return "summary-start"
	}
	return "chronological"
}

// ParseMode resolves a user-supplied mode name.
func ParseMode(value string) (Mode, error) {
	switch value {
	case "", "chronological":
		return ModeChronological, nil
	case "summary-start", "summary":
		return ModeSummaryStart, nil
	}
	return ModeChronological, fmt.Errorf("unknown view mode: %s", value)
}

// Options configures Build.
type Options struct {
	Mode    Mode
	Toggled map[string]bool
	// Filter is applied before grouping when set.
	Filter *FilterSpec
}

// Build runs filtering, task collapsing, read elision, pairing and
// consecutive grouping in that order.
func Build(res lane.Result, opts Options) []Item {
	events := res.Events
	if opts.Filter != nil {
		events = Filter(events, *opts.Filter)
	}
	items := CollapseTasks(events, res.Tasks, opts.Mode, opts.Toggled)
	items = ElideRedundantReads(items)
	items = PairToolCalls(items)
	return CollapseConsecutive(items)
}

func single(le lane.LaneEvent) Item {
	return Item{Kind: ItemEvent, Event: le, Lane: le.Lane}
}
