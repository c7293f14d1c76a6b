// Package launch starts a model server process when none is reachable.
package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.chrisrx.dev/x/run"

	"go.chrisrx.dev/modelserver/config"
)

var ErrNoJar = errors.New("cannot start model server, no jar specified")

// Pinger reports whether the model server is reachable. *client.Client
// implements it.
type Pinger interface {
	Ping(ctx context.Context) (bool, error)
}

type Option func(*Launcher)

func WithLogger(l *slog.Logger) Option {
	return func(launcher *Launcher) {
		launcher.logger = l
	}
}

// WithExecutable replaces the java executable.
func WithExecutable(path string) Option {
	return func(launcher *Launcher) {
		launcher.executable = path
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(launcher *Launcher) {
		launcher.interval = d
	}
}

type Launcher struct {
	pinger     Pinger
	cfg        config.Config
	executable string
	interval   time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

func New(p Pinger, cfg config.Config, opts ...Option) *Launcher {
	l := &Launcher{
		pinger:     p,
		cfg:        cfg,
		executable: "java",
		interval:   500 * time.Millisecond,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Args returns the arguments passed to the executable.
func (l *Launcher) Args() []string {
	args := []string{"-jar", l.cfg.Jar, "--port", strconv.Itoa(l.cfg.Port)}
	return append(args, l.cfg.Args...)
}

// Launch makes sure the model server is reachable. It returns true when it
// had to start the process, which then runs until Stop is called.
func (l *Launcher) Launch(ctx context.Context) (bool, error) {
	if l.alive(ctx) {
		l.logger.Info("model server already running")
		return false, nil
	}
	l.logger.Info("model server is not running or reachable, trying to start it from jar")
	if l.cfg.Jar == "" {
		return false, ErrNoJar
	}
	if err := l.start(); err != nil {
		return false, err
	}

	timeout := l.cfg.StartTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		select {
		case <-l.done:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	var ready atomic.Bool
	_ = run.Until(waitCtx, func() error {
		if !l.alive(waitCtx) {
			return fmt.Errorf("model server not ready")
		}
		ready.Store(true)
		return nil
	}, l.interval)
	if ready.Load() {
		l.logger.Info("model server started", slog.Int("pid", l.cmd.Process.Pid))
		return true, nil
	}

	select {
	case <-l.done:
		return true, fmt.Errorf("model server exited before becoming ready: %w", l.waitErr)
	default:
	}
	_ = l.Stop()
	return true, fmt.Errorf("model server not reachable after %s: %w", timeout, waitCtx.Err())
}

func (l *Launcher) alive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	ok, err := l.pinger.Ping(ctx)
	if err != nil {
		l.logger.Debug("ping failed", slog.Any("error", err))
		return false
	}
	return ok
}

func (l *Launcher) start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cmd != nil {
		return fmt.Errorf("model server already started")
	}
	cmd := exec.Command(l.executable, l.Args()...)
	cmd.Stdout = &outputWriter{logger: l.logger, level: slog.LevelInfo}
	cmd.Stderr = &outputWriter{logger: l.logger, level: slog.LevelError}

	l.logger.Info("starting model server",
		slog.String("executable", l.executable),
		slog.Any("args", cmd.Args[1:]),
	)
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("failed to spawn %s, perhaps it is not on the PATH: %w", l.executable, err)
		}
		return fmt.Errorf("failed to spawn %s: %w", l.executable, err)
	}
	l.cmd = cmd
	l.done = make(chan struct{})
	go func() {
		err := cmd.Wait()
		l.mu.Lock()
		l.waitErr = err
		l.mu.Unlock()
		l.logger.Info("model server exited", slog.Any("error", err))
		close(l.done)
	}()
	return nil
}

// Stop interrupts a process started by Launch and kills it if it does not
// exit in time.
func (l *Launcher) Stop() error {
	l.mu.Lock()
	cmd, done := l.cmd, l.done
	l.mu.Unlock()
	if cmd == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	default:
	}
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		return cmd.Process.Kill()
	}
	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		l.logger.Warn("model server did not stop, killing it")
		return cmd.Process.Kill()
	}
}

// outputWriter logs every line written by the process.
type outputWriter struct {
	logger *slog.Logger
	level  slog.Level
}

func (w *outputWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			w.logger.Log(context.Background(), w.level, "model server output", slog.String("line", line))
		}
	}
	return len(p), nil
}
