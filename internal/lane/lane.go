// Package lane assigns concurrency lanes to a canonical event stream and
// summarizes the sub-agent tasks in it.
package lane

import (
	"sort"
	"time"

	"hailog/internal/hail"
)

// Main is the lane of the main thread. It is never given to a task.
const Main = 0

// FallbackTitle names tasks that carry no title and no text.
const FallbackTitle = "Sub-agent"

// Marker tells a renderer where a lane branches off or rejoins.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerFork
	MarkerMerge
)

func (m Marker) String() string {
	switch m {
	case MarkerFork:
		return "fork"
	case MarkerMerge:
		return "merge"
	}
	return "none"
}

// LaneEvent is an event annotated with its lane.
type LaneEvent struct {
	Event hail.Event
	Index int
	Lane  int
	// Marker and MarkerLane describe the fork or merge this event causes.
	// A fork is drawn from Lane (always Main) into MarkerLane.
	Marker     Marker
	MarkerLane int
	// ActiveLanes is the sorted set of open lanes after this event.
	ActiveLanes []int
}

// TaskInfo summarizes one sub-agent task.
type TaskInfo struct {
	TaskID       string
	Title        string
	EventCount   int
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     time.Duration
	Lane         int
	LanesAtStart []int
	LanesAtEnd   []int
	Closed       bool
}

// Result is the outcome of Build.
type Result struct {
	Events []LaneEvent
	Tasks  map[string]*TaskInfo
	// Order lists task ids in the order they started.
	Order []string
}

// MaxLane returns the highest lane number used, which is the peak number of
// concurrently open tasks.
func (r Result) MaxLane() int {
	peak := Main
	for _, event := range r.Events {
		for _, l := range event.ActiveLanes {
			if l > peak {
				peak = l
			}
		}
	}
	return peak
}

// OrderedTasks returns the task summaries in start order.
func (r Result) OrderedTasks() []*TaskInfo {
	out := make([]*TaskInfo, 0, len(r.Order))
	for _, id := range r.Order {
		if info, ok := r.Tasks[id]; ok {
			out = append(out, info)
		}
	}
	return out
}

// allocator is the per-run lane bookkeeping.
type allocator struct {
	taskLane map[string]int
	active   map[int]struct{}
	free     []int
	next     int
}

func newAllocator() *allocator {
	return &allocator{
		taskLane: make(map[string]int),
		active:   map[int]struct{}{Main: {}},
		next:     Main + 1,
	}
}

// acquire pops the most recently released lane, or opens a new one.
func (a *allocator) acquire(taskID string) int {
	var l int
	if n := len(a.free); n > 0 {
		l = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		l = a.next
		a.next++
	}
	a.taskLane[taskID] = l
	a.active[l] = struct{}{}
	return l
}

// release frees the lane of taskID. Unknown tasks resolve to Main, which
// stays active.
func (a *allocator) release(taskID string) int {
	l, ok := a.taskLane[taskID]
	if !ok {
		return Main
	}
	delete(a.taskLane, taskID)
	delete(a.active, l)
	a.free = append(a.free, l)
	return l
}

func (a *allocator) snapshot() []int {
	lanes := make([]int, 0, len(a.active))
	for l := range a.active {
		lanes = append(lanes, l)
	}
	sort.Ints(lanes)
	return lanes
}

// Build annotates events with lanes in one pass. It keeps no state between
// calls and never fails.
func Build(events []hail.Event) Result {
	a := newAllocator()
	res := Result{
		Events: make([]LaneEvent, 0, len(events)),
		Tasks:  make(map[string]*TaskInfo),
	}

	for i, event := range events {
		le := LaneEvent{Event: event, Index: i, Lane: Main}
		taskID := event.TaskID

		switch {
		case event.Kind() == hail.KindTaskStart && taskID != "":
			before := a.snapshot()
			l := a.acquire(taskID)
			le.Marker, le.MarkerLane = MarkerFork, l
			res.Tasks[taskID] = &TaskInfo{
				TaskID:       taskID,
				Title:        taskTitle(event),
				StartedAt:    event.Timestamp,
				Lane:         l,
				LanesAtStart: before,
			}
			res.Order = append(res.Order, taskID)

		case event.Kind() == hail.KindTaskEnd && taskID != "":
			l := a.release(taskID)
			le.Lane = l
			le.Marker, le.MarkerLane = MarkerMerge, l
			if info, ok := res.Tasks[taskID]; ok && !info.Closed {
				info.Closed = true
				info.EndedAt = event.Timestamp
				if !info.StartedAt.IsZero() && !event.Timestamp.IsZero() && event.Timestamp.After(info.StartedAt) {
					info.Duration = event.Timestamp.Sub(info.StartedAt)
				}
				info.LanesAtEnd = a.snapshot()
			}

		case taskID != "":
			if l, ok := a.taskLane[taskID]; ok {
				le.Lane = l
			}
			if info, ok := res.Tasks[taskID]; ok {
				info.EventCount++
			}
		}

		le.ActiveLanes = a.snapshot()
		res.Events = append(res.Events, le)
	}
	return res
}

func taskTitle(event hail.Event) string {
	if start, ok := event.Type.(hail.TaskStart); ok && start.Title != "" {
		return start.Title
	}
	if text := event.FirstText(); text != "" {
		return text
	}
	return FallbackTitle
}
