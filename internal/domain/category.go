package domain

// Category classifies a schedule. It controls dispatch priority and, for
// CategoryTask, selects the roll-up dispatch algorithm that speaks the
// schedule's remaining tasks instead of a single task text.
type Category string

const (
	CategoryOnTime  Category = "on_time"
	CategoryEvent   Category = "event"
	CategoryRoutine Category = "routine"
	CategoryTask    Category = "task"
)

// Priority returns the dispatch priority for the category. Lower values
// dispatch first when multiple firings are pending at the same instant:
// on-the-hour chimes beat events, events beat routines, routines beat
// task roll-ups.
func (c Category) Priority() int {
	switch c {
	case CategoryOnTime:
		return 0
	case CategoryEvent:
		return 1
	case CategoryRoutine:
		return 2
	case CategoryTask:
		return 3
	default:
		return 0
	}
}

// Valid reports whether c is one of the closed set of categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryOnTime, CategoryEvent, CategoryRoutine, CategoryTask:
		return true
	}
	return false
}
