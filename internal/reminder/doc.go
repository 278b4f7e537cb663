// Package reminder models pet-care reminders and computes when they fire.
//
// # Recurrence
//
// Every Reminder holds exactly one Recurrence: Countdown, Weekly, Monthly or
// OneTime. The variants are plain values; computing a fire instant never
// mutates them and never performs I/O. A Snooze override sits on top of the
// recurrence and, while enabled, governs timing instead of it.
//
// # Execution basis
//
// All computations are anchored at the reminder's execution basis. Countdown
// and snooze measure their interval from it; weekly and monthly reminders look
// for the first calendar occurrence strictly after it. The basis resets to
// "now" when the recurrence changes or an alarm is acknowledged.
//
// # Mutation
//
// Reminder fields are unexported. Callers change state through the methods
// (SetRecurrence, SetEnabled, ChangeSkip, PrepareForNextAlarm, ...), and a
// Collection serializes those calls per reminder id.
package reminder
