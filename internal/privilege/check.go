// Package privilege reports whether the current process runs elevated.
package privilege

// isElevated is swapped in tests.
var isElevated = IsElevated

// HighestWarning returns a user-facing note when a task is registered with
// the highest run level from a process that is not elevated, or "" when
// there is nothing to warn about. schtasks accepts the request either way,
// but the task only gets an elevated token if the user is an administrator.
func HighestWarning(highest bool) string {
	if !highest || isElevated() {
		return ""
	}
	return "not running elevated: the task is registered with /RL HIGHEST but only receives an elevated token if this account is an administrator"
}
