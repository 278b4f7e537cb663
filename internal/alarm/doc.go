// Package alarm arms one timer per reminder and delivers due alarms.
//
// An Engine serves a single owner's reminder collection. Timer fires do not
// touch reminders directly: each posts a due event to a queue that Run
// drains on one goroutine. Every armed timer carries a generation number and
// a fire whose generation no longer matches the armed entry is dropped, so a
// cancel racing with a fire never presents an alarm twice.
//
// Weekly and monthly reminders that skip their next occurrence get a second
// timer at the skipped instant which clears the skip once it has passed.
package alarm
