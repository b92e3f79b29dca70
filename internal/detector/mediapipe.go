package detector

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrTimeout is returned when the landmark service does not answer in time.
// The service is restarted on the next request.
var ErrTimeout = errors.New("detector: landmark service timed out")

// MediaPipeDetector implements Detector by talking to a MediaPipe hand
// landmark service over stdin/stdout. Requests and responses are msgpack
// messages with a 4-byte big-endian length prefix.
type MediaPipeDetector struct {
	config    Config
	env       []string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
	logger    *slog.Logger
}

// NewMediaPipeDetector creates a new detector. The service is started
// lazily on first detection and stopped again after IdleTimeout.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	if len(config.Command) == 0 {
		return nil, fmt.Errorf("detector: no service command configured")
	}
	if config.MaxHands <= 0 {
		config.MaxHands = 1
	}
	return &MediaPipeDetector{
		config: config,
		logger: slog.Default().With("component", "detector"),
	}, nil
}

// Detect encodes the frame as JPEG and sends it to the service.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return d.DetectJPEG(data)
}

// DetectJPEG sends an encoded frame to the service.
func (d *MediaPipeDetector) DetectJPEG(data []byte) ([]HandLandmarks, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	req := request{
		Image:           data,
		MaxHands:        d.config.MaxHands,
		MinConfidence:   d.config.MinConfidence,
		MinTrackingConf: d.config.MinTrackingConf,
	}

	type exchange struct {
		resp response
		err  error
	}
	done := make(chan exchange, 1)
	stdin, stdout := d.stdin, d.stdout
	go func() {
		var ex exchange
		if ex.err = writeMessage(stdin, req); ex.err == nil {
			ex.err = readMessage(stdout, &ex.resp)
		}
		done <- ex
	}()

	var timeout <-chan time.Time
	if d.config.RequestTimeout > 0 {
		t := time.NewTimer(d.config.RequestTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case ex := <-done:
		if ex.err != nil {
			d.logger.Error("landmark service exchange failed", "error", ex.err)
			d.kill()
			return nil, fmt.Errorf("detector: %w", ex.err)
		}
		if ex.resp.Error != "" {
			return nil, fmt.Errorf("detector: service error: %s", ex.resp.Error)
		}
		d.resetIdleTimer()
		hands := make([]HandLandmarks, len(ex.resp.Hands))
		for i, h := range ex.resp.Hands {
			hands[i] = h.toHandLandmarks()
		}
		return hands, nil

	case <-timeout:
		d.logger.Warn("landmark service timed out, restarting", "timeout", d.config.RequestTimeout)
		d.kill()
		return nil, ErrTimeout
	}
}

// Close shuts down the service process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	d.cmd = exec.Command(d.config.Command[0], d.config.Command[1:]...)
	if len(d.env) > 0 {
		d.cmd.Env = append(os.Environ(), d.env...)
	}

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := d.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start landmark service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	go d.logStderr(stderr)

	d.logger.Info("landmark service started", "pid", d.cmd.Process.Pid)
	return nil
}

// logStderr forwards service log lines, mapping Python log levels.
func (d *MediaPipeDetector) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			d.logger.Error("landmark service error", "log", line)
		case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
			d.logger.Warn("landmark service warning", "log", line)
		default:
			d.logger.Debug("landmark service log", "log", line)
		}
	}
}

// kill stops a misbehaving service without waiting for a graceful exit.
func (d *MediaPipeDetector) kill() {
	if d.started && d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.shutdown()
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.config.IdleTimeout <= 0 {
		return
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.logger.Info("landmark service idle, stopping")
		d.shutdown()
	})
}
