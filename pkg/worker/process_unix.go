//go:build !windows

package worker

import (
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// osProcess runs the worker in its own process group so Kill can take down
// the interpreter and anything it spawned.
type osProcess struct {
	cmd    *exec.Cmd
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
		Setpgid: true,
	}

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, err
	}

	// The child holds duplicates of its ends; release the parent's copies
	// so EOF arrives when the child exits.
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	p := &osProcess{
		cmd:    cmd,
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

	pgid, err := syscall.Getpgid(p.cmd.Process.Pid)
	if err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
	} else {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-p.exited:
		return
	case <-time.After(killGrace):
	}

	if pgid > 0 {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	} else {
		_ = p.cmd.Process.Kill()
	}
	<-p.exited
}

func (p *osProcess) Wait() error {
	<-p.exited
	return p.err
}
