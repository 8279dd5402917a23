package shell

import "runtime"

// shellInvocation returns the host shell binary and the -c style argument
// list used to run script as a single session. sudo, when requested and
// permitted, wraps the whole session rather than each line, so a later
// line relying on state set by an earlier privileged line still sees it.
func shellInvocation(script string, sudo bool) (string, []string) {
	if sudo {
		return "sudo", []string{"sh", "-c", script}
	}
	return "/bin/sh", []string{"-c", script}
}

// sudoAllowed reports whether this host permits privilege escalation at
// all. The orchestrator only ever runs on Linux hosts; sudo is rejected
// outright rather than silently no-op'd on anything else.
func sudoAllowed() bool {
	return runtime.GOOS == "linux"
}
