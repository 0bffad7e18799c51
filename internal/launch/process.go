// Package launch starts and supervises the external processes a scenario
// depends on.
package launch

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"syscall"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultStopGrace is how long Stop waits after SIGTERM before SIGKILL.
	DefaultStopGrace = 5 * time.Second

	maxLineLength = 64 * 1024
)

var (
	ErrStartTimeout = errors.New("process did not start in time")
	ErrExited       = errors.New("process exited before it started")
)

// ProcessSpec declares one process. Command is split like a shell would
// and may reference environment variables.
type ProcessSpec struct {
	Name    string
	Command string
	Env     []string
	Dir     string
	// ReadyPattern, when set, is matched against each output line. The
	// process counts as started on the first match instead of on spawn.
	ReadyPattern string
}

// Process is a supervised child process.
type Process struct {
	spec  ProcessSpec
	args  []string
	ready *regexp.Regexp
	grace time.Duration
	log   modular.Logger

	cmd       *exec.Cmd
	started   chan struct{}
	startOnce sync.Once
	exited    chan struct{}
	exitErr   error
	stopOnce  sync.Once
	stopErr   error
}

func NewProcess(spec ProcessSpec, log modular.Logger) (*Process, error) {
	if spec.Name == "" {
		return nil, errors.New("process name must not be empty")
	}
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(spec.Command)
	if err != nil {
		return nil, errors.Wrapf(err, "parse command of %s", spec.Name)
	}
	if len(args) == 0 {
		return nil, errors.Errorf("empty command for %s", spec.Name)
	}
	p := &Process{
		spec:    spec,
		args:    args,
		grace:   DefaultStopGrace,
		log:     log.WithField("process", spec.Name),
		started: make(chan struct{}),
		exited:  make(chan struct{}),
	}
	if spec.ReadyPattern != "" {
		if p.ready, err = regexp.Compile(spec.ReadyPattern); err != nil {
			return nil, errors.Wrapf(err, "ready pattern of %s", spec.Name)
		}
	}
	return p, nil
}

func (p *Process) Name() string {
	return p.spec.Name
}

// Start spawns the process. It is stopped when ctx is done.
func (p *Process) Start(ctx context.Context) error {
	if p.cmd != nil {
		return errors.Errorf("%s already started", p.spec.Name)
	}
	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.Env = append(os.Environ(), p.spec.Env...)
	cmd.Dir = p.spec.Dir
	// A process group lets Stop reach grandchildren, which would otherwise
	// keep the output pipes open.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to setup stdoutPipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "failed to setup stderrPipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start %s", p.spec.Name)
	}
	p.cmd = cmd
	p.log.Debugf("Started pid %d: %v", cmd.Process.Pid, p.args)
	if p.ready == nil {
		p.markStarted()
	}

	var pumps errgroup.Group
	pumps.Go(func() error { return p.scan("stdout", stdout) })
	pumps.Go(func() error { return p.scan("stderr", stderr) })

	go func() {
		if err := pumps.Wait(); err != nil {
			p.log.Warn(err)
		}
		// Wait closes the pipes, so it must follow the scanners.
		p.exitErr = cmd.Wait()
		p.log.Debugf("Exited: %v", p.exitErr)
		close(p.exited)
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = p.Stop()
		case <-p.exited:
		}
	}()
	return nil
}

// scan reads r to EOF, matching each line against the ready pattern.
// Lines longer than maxLineLength are cut, the rest of them is still
// consumed so the child never blocks on a full pipe.
func (p *Process) scan(stream string, r io.Reader) error {
	reader := bufio.NewReader(r)
	log := p.log.WithField("stream", stream)
	var line []byte
	for {
		chunk, more, err := reader.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "reading %s", stream)
		}
		if room := maxLineLength - len(line); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			line = append(line, chunk...)
		}
		if more {
			continue
		}
		log.Debug(string(line))
		if p.ready != nil && p.ready.Match(line) {
			p.markStarted()
		}
		line = line[:0]
	}
}

func (p *Process) markStarted() {
	p.startOnce.Do(func() {
		p.log.Info("Process started")
		close(p.started)
	})
}

// Started is closed once the process counts as started.
func (p *Process) Started() <-chan struct{} {
	return p.started
}

// Exited is closed once the process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// WaitForStart blocks until the process counts as started. It fails with
// ErrExited when the process dies first and ErrStartTimeout when timeout
// elapses.
func (p *Process) WaitForStart(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.started:
		return nil
	case <-p.exited:
		select {
		case <-p.started:
			return nil
		default:
		}
		return errors.Wrapf(ErrExited, "%s (%v)", p.spec.Name, p.exitErr)
	case <-timer.C:
		select {
		case <-p.started:
			return nil
		default:
		}
		return errors.Wrapf(ErrStartTimeout, "%s after %s", p.spec.Name, timeout)
	}
}

// Stop sends SIGTERM to the process group and SIGKILL after the grace
// period. Further calls return the first result.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		if p.cmd == nil {
			return
		}
		select {
		case <-p.exited:
			return
		default:
		}
		pgid := -p.cmd.Process.Pid
		if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
			p.log.Debug("SIGTERM: ", err)
		}
		timer := time.NewTimer(p.grace)
		defer timer.Stop()
		select {
		case <-p.exited:
			return
		case <-timer.C:
		}
		p.log.Warnf("Still running after %s, killing", p.grace)
		if err := syscall.Kill(pgid, syscall.SIGKILL); err != nil {
			p.stopErr = errors.Wrapf(err, "kill %s", p.spec.Name)
			return
		}
		<-p.exited
	})
	return p.stopErr
}
