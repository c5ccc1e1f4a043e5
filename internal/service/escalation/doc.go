// Package escalation drives reminders and emergency campaigns.
//
// Every tick the Engine loads the subjects that are close to or past their
// deadline, plus the subjects owning emergencies due for a resend, and
// evaluates each of them in an exclusive section:
//
//   - the stored status is re-derived from the deadline;
//   - the subject is reminded once per cycle at the tightest reminder tier reached;
//   - once the deadline (plus the optional delay) has passed, one emergency
//     per active contact is created, in priority order, once per cycle;
//   - sent emergencies are resent every 6 hours and failed ones retried,
//     both only within 48 hours of the campaign start.
//
// Recovery (cancelling everything open when the subject checks in) belongs
// to the monitor service, which takes the same per-subject lock.
package escalation
