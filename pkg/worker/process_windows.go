//go:build windows

package worker

import (
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// osProcess runs the worker inside a job object so Kill can take down the
// interpreter and anything it spawned.
type osProcess struct {
	cmd    *exec.Cmd
	job    windows.Handle
	stdin  *os.File
	stdout *os.File
	stderr *os.File
	exited chan struct{}
	err    error
}

// startProcess launches the interpreter with explicit pipes. The pipes are
// plain os.Pipe pairs rather than exec's managed ones so that reads drain
// fully at process exit instead of racing Wait's cleanup.
func startProcess(spec processSpec) (process, error) {
	job, err := createJobObject()
	if err != nil {
		job = 0
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, err
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, err
	}

	cmd := exec.Command(spec.argv[0], spec.argv[1:]...)
	cmd.Dir = spec.dir
	cmd.Env = spec.env
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}

	if err := cmd.Start(); err != nil {
		if job != 0 {
			windows.CloseHandle(job)
		}
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, err
	}

	if job != 0 {
		if err := assignProcessToJob(job, cmd.Process.Pid); err != nil {
			windows.CloseHandle(job)
			job = 0
		}
	}

	// The child holds duplicates of its ends; release the parent's copies
	// so EOF arrives when the child exits.
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	p := &osProcess{
		cmd:    cmd,
		job:    job,
		stdin:  stdinW,
		stdout: stdoutR,
		stderr: stderrR,
		exited: make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

func (p *osProcess) reap() {
	p.err = p.cmd.Wait()
	close(p.exited)
}

func (p *osProcess) Stdin() io.Writer  { return p.stdin }
func (p *osProcess) Stdout() io.Reader { return p.stdout }
func (p *osProcess) Stderr() io.Reader { return p.stderr }
func (p *osProcess) Pid() int          { return p.cmd.Process.Pid }

func (p *osProcess) Kill() {
	if p.cmd.Process == nil {
		return
	}

	if p.job != 0 {
		// The job was created with KILL_ON_JOB_CLOSE; closing the
		// handle terminates the whole tree.
		windows.CloseHandle(p.job)
		p.job = 0
	} else {
		_ = p.cmd.Process.Kill()
	}

	select {
	case <-p.exited:
		return
	case <-time.After(killGrace):
	}

	_ = p.cmd.Process.Kill()
	<-p.exited
}

func (p *osProcess) Wait() error {
	<-p.exited
	return p.err
}

func createJobObject() (windows.Handle, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return 0, err
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{}
	info.BasicLimitInformation.LimitFlags = windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE
	_, err = windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	)
	if err != nil {
		windows.CloseHandle(job)
		return 0, err
	}

	return job, nil
}

func assignProcessToJob(job windows.Handle, pid int) error {
	handle, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return err
	}
	defer windows.CloseHandle(handle)

	return windows.AssignProcessToJobObject(job, handle)
}
