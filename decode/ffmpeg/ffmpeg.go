// Package ffmpeg decodes any format the ffmpeg binary understands by
// piping payloads through it. It is the broadest decoder available and
// the usual primary in production.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/driftwhale/samplepool"
)

// Config controls the ffmpeg invocation.
type Config struct {
	// BinaryPath is the ffmpeg executable, found on PATH when relative
	BinaryPath string
	// SampleRate of the PCM output
	SampleRate int
	// Channels of the PCM output
	Channels int
	// ConvertTimeout bounds a single conversion
	ConvertTimeout time.Duration
}

// DefaultConfig returns sane conversion parameters.
func DefaultConfig() Config {
	return Config{
		BinaryPath:     "ffmpeg",
		SampleRate:     44100,
		Channels:       2,
		ConvertTimeout: 30 * time.Second,
	}
}

// Decoder shells out to ffmpeg for each payload.
type Decoder struct {
	cfg Config
}

var _ samplepool.Decoder = (*Decoder)(nil)

// New verifies the ffmpeg binary exists and returns a decoder.
func New(cfg Config) (*Decoder, error) {
	def := DefaultConfig()
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = def.BinaryPath
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = def.Channels
	}
	if cfg.ConvertTimeout <= 0 {
		cfg.ConvertTimeout = def.ConvertTimeout
	}

	path, err := exec.LookPath(cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found: %w", err)
	}
	cfg.BinaryPath = path
	return &Decoder{cfg: cfg}, nil
}

// Name implements the Decoder interface
func (d *Decoder) Name() string {
	return "ffmpeg"
}

// Decode implements the Decoder interface
func (d *Decoder) Decode(ctx context.Context, data []byte) (*samplepool.Audio, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ConvertTimeout)
	defer cancel()

	cmd := exec.Command(d.cfg.BinaryPath,
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(d.cfg.SampleRate),
		"-ac", strconv.Itoa(d.cfg.Channels),
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
	case <-ctx.Done():
		// Ask ffmpeg to stop gracefully first, force it if it lingers.
		_ = cmd.Process.Signal(os.Interrupt)
		killTimer := time.NewTimer(2 * time.Second)
		select {
		case <-done:
			killTimer.Stop()
		case <-killTimer.C:
			_ = cmd.Process.Kill()
			<-done
		}
		return nil, ctx.Err()
	}

	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return nil, errors.New("ffmpeg produced no audio")
	}

	frameBytes := 2 * d.cfg.Channels
	frames := len(pcm) / frameBytes
	return &samplepool.Audio{
		PCM:        pcm,
		SampleRate: d.cfg.SampleRate,
		Channels:   d.cfg.Channels,
		Duration:   time.Duration(frames) * time.Second / time.Duration(d.cfg.SampleRate),
	}, nil
}
