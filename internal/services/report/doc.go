// Package report periodically logs a summary of broadcast activity: replies
// still outstanding, registered recipients and the dispatch events seen since
// the previous summary.
//
// Schedules use standard cron syntax (5 fields) or descriptors such as
// "@every 5m" and "@hourly". An empty schedule disables the reporter.
package report
