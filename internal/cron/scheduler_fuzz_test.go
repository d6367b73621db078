package cron

import "testing"

func FuzzScheduleExpression(f *testing.F) {
	// Seeds include the default maintenance schedules and common mistakes.
	f.Add("*/5 * * * *")
	f.Add("*/10 * * * *")
	f.Add("0 3 * * *")
	f.Add("* * * * *")
	f.Add("0 0 * * * *")
	f.Add("often")
	f.Add("")
	f.Add("61 * * * *")

	f.Fuzz(func(_ *testing.T, expr string) {
		// Must not panic; parse errors are expected for arbitrary input.
		_, _ = scheduleParser().Parse(expr)
	})
}
