// Package audio converts remote MP3 files into mono Opus-in-Ogg voice
// notes.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hajimehoshi/go-mp3"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"layeh.com/gopus"

	"your.org/whatsapp-rest/internal/media"
)

const (
	opusSampleRate = 48000
	opusChannels   = 1
	// 20 ms at 48 kHz
	frameSize     = 960
	maxPacketSize = 4000
	opusPayload   = 111
)

// Stage names the step of the pipeline that failed.
type Stage string

const (
	StageDecode Stage = "decode"
	StageEncode Stage = "encode"
	StageMux    Stage = "mux"
)

// TranscodeError reports a failure inside the codec pipeline.
type TranscodeError struct {
	Stage Stage
	Err   error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode %s: %v", e.Stage, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

var errNoSamples = errors.New("no audio samples")

// Clip is an encoded voice note.
type Clip struct {
	// Data is the Ogg/Opus stream.
	Data     []byte
	Seconds  uint32
	Waveform []byte
}

// Media wraps the clip as a voice note ready to send.
func (c *Clip) Media() *media.Media {
	return &media.Media{
		MimeType: "audio/ogg; codecs=opus",
		Data:     c.Data,
		Voice:    true,
		Seconds:  c.Seconds,
		Waveform: c.Waveform,
	}
}

// Transcoder fetches MP3 files over HTTP and re-encodes them.  It holds
// no state besides the HTTP client and is safe for concurrent use.
type Transcoder struct {
	client *http.Client
}

// NewTranscoder returns a Transcoder using client for downloads.  A nil
// client means http.DefaultClient.
func NewTranscoder(client *http.Client) *Transcoder {
	return &Transcoder{client: client}
}

// Convert downloads url and encodes it into a Clip.  Download failures
// are *media.FetchError, codec failures *TranscodeError.
func (t *Transcoder) Convert(ctx context.Context, url string) (*Clip, error) {
	m, err := media.Fetch(ctx, t.client, url)
	if err != nil {
		return nil, err
	}
	return Encode(bytes.NewReader(m.Data))
}

// Encode decodes an MP3 stream and re-encodes it as a mono Opus/Ogg clip.
func Encode(r io.Reader) (*Clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, &TranscodeError{Stage: StageDecode, Err: err}
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, &TranscodeError{Stage: StageDecode, Err: err}
	}
	// go-mp3 always yields 16-bit little endian stereo
	pcm := resample(downmixStereo(raw), dec.SampleRate(), opusSampleRate)
	if len(pcm) == 0 {
		return nil, &TranscodeError{Stage: StageDecode, Err: errNoSamples}
	}
	return EncodePCM(pcm)
}

// EncodePCM encodes mono 48 kHz samples as an Ogg/Opus clip.  Packet
// timestamps start at zero so the stream never has negative timestamps.
func EncodePCM(pcm []int16) (*Clip, error) {
	if len(pcm) == 0 {
		return nil, &TranscodeError{Stage: StageEncode, Err: errNoSamples}
	}
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Voip)
	if err != nil {
		return nil, &TranscodeError{Stage: StageEncode, Err: err}
	}

	var out bytes.Buffer
	ogg, err := oggwriter.NewWith(&out, opusSampleRate, opusChannels)
	if err != nil {
		return nil, &TranscodeError{Stage: StageMux, Err: err}
	}

	frame := make([]int16, frameSize)
	var seq uint16
	var ts uint32
	for off := 0; off < len(pcm); off += frameSize {
		n := copy(frame, pcm[off:])
		for i := n; i < frameSize; i++ {
			frame[i] = 0
		}
		packet, err := enc.Encode(frame, frameSize, maxPacketSize)
		if err != nil {
			return nil, &TranscodeError{Stage: StageEncode, Err: err}
		}
		err = ogg.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    opusPayload,
				SequenceNumber: seq,
				Timestamp:      ts,
			},
			Payload: packet,
		})
		if err != nil {
			return nil, &TranscodeError{Stage: StageMux, Err: err}
		}
		seq++
		ts += frameSize
	}
	if err := ogg.Close(); err != nil {
		return nil, &TranscodeError{Stage: StageMux, Err: err}
	}

	return &Clip{
		Data:     out.Bytes(),
		Seconds:  durationSeconds(len(pcm), opusSampleRate),
		Waveform: buildWaveform(pcm),
	}, nil
}

func durationSeconds(samples, rate int) uint32 {
	if samples <= 0 || rate <= 0 {
		return 0
	}
	return uint32((samples + rate - 1) / rate)
}
