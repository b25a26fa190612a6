// Package mp3 decodes MP3 payloads in pure Go, no external binaries
// required.
package mp3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/driftwhale/samplepool"
)

// bytesPerFrame is the decoder's fixed output frame size, 16-bit
// samples across two channels.
const bytesPerFrame = 4

// Decoder converts MP3 bytes into interleaved 16-bit stereo PCM at the
// stream's native sample rate.
type Decoder struct{}

var _ samplepool.Decoder = (*Decoder)(nil)

// New returns an MP3 decoder.
func New() *Decoder {
	return &Decoder{}
}

// Name implements the Decoder interface
func (d *Decoder) Name() string {
	return "mp3"
}

// Decode implements the Decoder interface
func (d *Decoder) Decode(ctx context.Context, data []byte) (*samplepool.Audio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dec, err := gomp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open mp3 stream: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decode mp3 stream: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("mp3 stream decoded to zero samples")
	}

	rate := dec.SampleRate()
	frames := len(pcm) / bytesPerFrame
	return &samplepool.Audio{
		PCM:        pcm,
		SampleRate: rate,
		Channels:   2,
		Duration:   time.Duration(frames) * time.Second / time.Duration(rate),
	}, nil
}
