package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mpvbridge/mpvbridge/constant"
	"github.com/mpvbridge/mpvbridge/log"
	"github.com/mpvbridge/mpvbridge/where"
)

// spawn starts the engine child process in idle mode with an IPC server enabled.
func (p *IPC) spawn(mode Mode) error {
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return fmt.Errorf("generate socket name: %w", err)
	}
	p.socketPath = filepath.Join(where.Temp(), fmt.Sprintf("%s-%x.sock", constant.App, randomBytes))

	binary := p.opts.Binary
	if binary == "" {
		binary = "mpv"
	}

	args := spawnArgs(p.opts, mode, p.socketPath)
	log.Debugf("spawning %s %s", binary, strings.Join(args, " "))

	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = sysProcAttr()
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", binary, err)
	}
	p.cmd = cmd

	// Reap the child so it never lingers as a zombie.
	p.exited = make(chan struct{})
	go func() {
		err := cmd.Wait()
		log.Debugf("engine process exited: %v", err)
		close(p.exited)
	}()

	return nil
}

func spawnArgs(opts Options, mode Mode, socketPath string) []string {
	args := []string{
		"--no-terminal",
		"--really-quiet",
		"--idle=yes",
		fmt.Sprintf("--input-ipc-server=%s", socketPath),
	}

	if mode == ModeAudio {
		args = append(args, "--vid=no", "--force-window=no")
	} else {
		args = append(args, "--force-window=yes")
	}

	if opts.KeepOpen {
		args = append(args, "--keep-open=yes")
	}
	if opts.Hwdec != "" {
		args = append(args, fmt.Sprintf("--hwdec=%s", opts.Hwdec))
	}

	return append(args, opts.ExtraArgs...)
}

// waitForSocket polls until the IPC socket accepts connections.
func (p *IPC) waitForSocket(ctx context.Context) error {
	retries := max(p.opts.SocketWaitRetries, 1)
	delay := p.opts.SocketWaitDelay
	if delay <= 0 {
		delay = 150 * time.Millisecond
	}

	for i := 0; i < retries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.exited:
			return errors.New("mpv exited before socket was ready")
		case <-time.After(delay):
		}

		conn, err := net.Dial("unix", p.socketPath)
		if err == nil {
			_ = conn.Close()
			return nil
		}
	}
	return fmt.Errorf("socket %s not ready after %d attempts", p.socketPath, retries)
}

func (p *IPC) kill() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	select {
	case <-p.exited:
	default:
		_ = killProcess(p.cmd)
	}
}

// SanitizeTarget validates a media target before it is handed to the engine.
// It rejects anything that could be read as a command-line flag and any URL scheme
// other than http, https and file; everything else is treated as a local path.
func SanitizeTarget(target string) (string, error) {
	t := strings.TrimSpace(target)
	if t == "" {
		return "", errors.New("empty media target")
	}

	if strings.ContainsAny(t, "\x00\n\r") {
		return "", errors.New("invalid control characters in media target")
	}

	if strings.HasPrefix(t, "-") {
		return "", errors.New("media target must not start with '-'")
	}

	if strings.Contains(t, "://") {
		u, err := url.Parse(t)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "file":
			return t, nil
		default:
			return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
		}
	}

	return filepath.Clean(t), nil
}
