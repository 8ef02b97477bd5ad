// Package encoder turns finished recordings into FLAC for archival and
// download. Recordings are mono 16-bit PCM, so each block maps onto a
// single verbatim subframe.
package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const (
	blockSize     = 4096
	bitsPerSample = 16
)

// EncodeFLAC compresses little-endian 16-bit mono PCM into a FLAC stream.
func EncodeFLAC(pcm []byte, sampleRate int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned to 16-bit samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	var buf bytes.Buffer
	info := &meta.StreamInfo{
		BlockSizeMin:  blockSize,
		BlockSizeMax:  blockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     1,
		BitsPerSample: bitsPerSample,
		NSamples:      uint64(len(pcm) / 2),
	}

	enc, err := flac.NewEncoder(&buf, info)
	if err != nil {
		return nil, fmt.Errorf("create flac encoder: %w", err)
	}

	total := len(pcm) / 2
	for pos := 0; pos < total; pos += blockSize {
		end := pos + blockSize
		if end > total {
			end = total
		}

		samples := make([]int32, end-pos)
		for i := range samples {
			samples[i] = int32(int16(binary.LittleEndian.Uint16(pcm[(pos+i)*2:])))
		}

		subframe := &frame.Subframe{
			SubHeader: frame.SubHeader{
				Pred: frame.PredVerbatim,
			},
			Samples:  samples,
			NSamples: len(samples),
		}

		f := &frame.Frame{
			Header: frame.Header{
				BlockSize:     uint16(len(samples)),
				SampleRate:    uint32(sampleRate),
				Channels:      frame.ChannelsMono,
				BitsPerSample: bitsPerSample,
			},
			Subframes: []*frame.Subframe{subframe},
		}

		if err := enc.WriteFrame(f); err != nil {
			return nil, fmt.Errorf("write flac frame: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close flac encoder: %w", err)
	}

	return buf.Bytes(), nil
}
