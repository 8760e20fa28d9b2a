package supervisor

import (
	"os/exec"
	"syscall"
)

// terminateSignal is the graceful termination signal sent to a
// supervised child on Stop (spec.md §4.4).
func terminateSignal() syscall.Signal {
	return syscall.SIGTERM
}

// OrphanCleanup issues a best-effort process-name kill for any lingering
// driver instances left behind by a previous, uncleanly-terminated run
// (spec.md §4.4 "Orphan cleanup"). It is fire-and-forget: the kill runs
// in its own goroutine, so a slow or missing `pkill` never blocks the
// caller (spec.md §5 Cancellation: "the final backstop").
func (s *Supervisor) OrphanCleanup() {
	go func() {
		cmd := exec.Command("pkill", "-f", s.cfg.DriverBinaryPath)
		if err := cmd.Run(); err != nil {
			s.logger.Debug("orphan cleanup: no lingering driver processes or pkill unavailable", "error", err)
		}
	}()
}
