//go:build darwin

package process

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// proc_info syscall constants (from XNU bsd/sys/proc_info.h).
const (
	sysProcInfo         = 336  // SYS_PROC_INFO
	procInfoCallPIDInfo = 2    // PROC_INFO_CALL_PIDINFO
	procPIDPathInfo     = 11   // PROC_PIDPATHINFO
	procPIDPathMaxSz    = 4096 // PROC_PIDPATHINFO_MAXSIZE
)

// queryProcessPath retrieves the executable path for a PID using the
// proc_pidpath equivalent via raw syscall (no CGO required).
func queryProcessPath(pid uint32) (string, error) {
	buf := make([]byte, procPIDPathMaxSz)
	n, _, errno := unix.Syscall6(
		sysProcInfo,
		uintptr(procInfoCallPIDInfo),
		uintptr(pid),
		uintptr(procPIDPathInfo),
		0,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(procPIDPathMaxSz),
	)
	if errno != 0 {
		return "", errno
	}
	if n == 0 {
		return "", unix.ESRCH
	}
	return unix.ByteSliceToString(buf[:n]), nil
}

// listAllPIDs returns all process IDs via sysctl("kern.proc.all"), which
// returns typed KinfoProc structures with buffer management handled by
// golang.org/x/sys/unix.
func listAllPIDs() ([]uint32, error) {
	kprocs, err := unix.SysctlKinfoProcSlice("kern.proc.all")
	if err != nil {
		return nil, err
	}

	pids := make([]uint32, 0, len(kprocs))
	for i := range kprocs {
		pid := int32(kprocs[i].Proc.P_pid)
		if pid > 0 {
			pids = append(pids, uint32(pid))
		}
	}
	return pids, nil
}

func signalTerm(pid uint32) error {
	return unix.Kill(int(pid), unix.SIGTERM)
}

func signalKill(pid uint32) error {
	return unix.Kill(int(pid), unix.SIGKILL)
}

// alive probes the pid with signal 0.
func alive(pid uint32) bool {
	return unix.Kill(int(pid), 0) == nil
}
