package display

import (
	"hailog/internal/hail"
	"hailog/internal/lane"
)

// CollapseTasks replaces each collapsed task, from its TaskStart through
// its matching TaskEnd, with one ItemCollapsedTask. Everything in between
// is hidden, including main-thread events and nested tasks.
func CollapseTasks(events []lane.LaneEvent, tasks map[string]*lane.TaskInfo, mode Mode, toggled map[string]bool) []Item {
	collapsed := func(taskID string) bool {
		if mode == ModeSummaryStart {
			return !toggled[taskID]
		}
		return toggled[taskID]
	}

	items := make([]Item, 0, len(events))
	// skipUntil is the id of the collapsed task whose end closes the range.
	skipUntil := ""
	for _, le := range events {
		event := le.Event
		id := event.TaskID

		if skipUntil != "" {
			if event.Kind() == hail.KindTaskEnd && id == skipUntil {
				skipUntil = ""
			}
			continue
		}
		if event.Kind() == hail.KindTaskStart && id != "" && collapsed(id) {
			skipUntil = id
			items = append(items, Item{
				Kind:  ItemCollapsedTask,
				Event: le,
				Task:  tasks[id],
				Lane:  le.Lane,
			})
			continue
		}
		items = append(items, single(le))
	}
	return items
}
