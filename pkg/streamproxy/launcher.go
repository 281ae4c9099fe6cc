package streamproxy

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tunerproxy/tunerproxy/internal/utils"
)

const urlPlaceholder = "{url}"

// DefaultArgs remuxes the input into MPEG-TS on stdout.
var DefaultArgs = []string{
	"-hide_banner", "-loglevel", "warning",
	"-i", urlPlaceholder,
	"-codec", "copy",
	"-f", "mpegts",
	"pipe:1",
}

type ExecLauncher struct {
	logger zerolog.Logger
	binary string
	args   []string
}

func NewExecLauncher(binary string, args []string) *ExecLauncher {
	if len(args) == 0 {
		args = DefaultArgs
	}

	return &ExecLauncher{
		logger: log.With().Str("module", "streamproxy").Str("submodule", "decoder").Logger(),
		binary: binary,
		args:   args,
	}
}

func (l *ExecLauncher) Spawn(ctx context.Context, url string) (Process, error) {
	args := make([]string, len(l.args))
	for i, arg := range l.args {
		args[i] = strings.ReplaceAll(arg, urlPlaceholder, url)
	}

	// termination is handled by the session, not by the context
	cmd := exec.Command(l.binary, args...)
	cmd.SysProcAttr = configureAsProcessGroup()

	logger := l.logger.With().Str("binary", l.binary).Logger()
	stderr := utils.LogWriter(logger, zerolog.DebugLevel)
	cmd.Stderr = stderr

	// os.Pipe instead of StdoutPipe so reaping the process does not close
	// the read side before everything buffered has been consumed
	read, write, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecoderSpawn, err)
	}
	cmd.Stdout = write

	if err := cmd.Start(); err != nil {
		read.Close()
		write.Close()
		return nil, fmt.Errorf("%w: %w", ErrDecoderSpawn, err)
	}

	// child holds its own copy now
	write.Close()

	p := &execProcess{
		logger: logger.With().Int("pid", cmd.Process.Pid).Logger(),
		cmd:    cmd,
		stdout: read,
		exited: make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		stderr.Flush()
		if err != nil {
			p.logger.Debug().Err(err).Msg("decoder exited with an error")
		} else {
			p.logger.Debug().Msg("decoder exited")
		}
		close(p.exited)
	}()

	p.logger.Debug().Strs("args", args).Msg("decoder started")
	return p, nil
}

type execProcess struct {
	logger zerolog.Logger
	cmd    *exec.Cmd
	stdout *os.File
	exited chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (p *execProcess) Pid() int                { return p.cmd.Process.Pid }
func (p *execProcess) Stdout() io.Reader       { return p.stdout }
func (p *execProcess) Exited() <-chan struct{} { return p.exited }

func (p *execProcess) Terminate() error {
	return terminateProcessGroup(p.cmd)
}

func (p *execProcess) Kill() error {
	return killProcessGroup(p.cmd)
}

func (p *execProcess) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.stdout.Close()
	})
	return p.closeErr
}
