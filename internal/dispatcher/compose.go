package dispatcher

import (
	"fmt"
	"strings"
	"time"
)

// urgencyThreshold marks how close to the deadline the reminder switches to
// an urgent phrasing.
const urgencyThreshold = 30 * time.Minute

func composeAllDone(title string) string {
	return fmt.Sprintf("All tasks for %s are done.", title)
}

// composeReminder enumerates the unfinished tasks in their stored order and
// appends the time left until the schedule's end, when one is set.
func composeReminder(title string, pending []string, end *time.Time, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reminder for %s.", title)

	if len(pending) == 1 {
		fmt.Fprintf(&b, " You have 1 task left: %s.", pending[0])
	} else {
		fmt.Fprintf(&b, " You have %d tasks left: %s.", len(pending), strings.Join(pending, ", "))
	}

	if end == nil || !end.After(now) {
		return b.String()
	}

	remaining := end.Sub(now)
	hours := int(remaining / time.Hour)
	minutes := int(remaining/time.Minute) % 60
	seconds := int(remaining/time.Second) % 60

	if hours > 0 {
		fmt.Fprintf(&b, " %d hours %d minutes remain.", hours, minutes)
	} else if minutes > 0 {
		fmt.Fprintf(&b, " %d minutes %d seconds remain.", minutes, seconds)
	} else {
		fmt.Fprintf(&b, " %d seconds remain.", seconds)
	}

	if remaining < urgencyThreshold {
		b.WriteString(" Hurry, time is almost up.")
	}
	return b.String()
}
