package decoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"math"
	"os"

	"github.com/azul3d/engine/audio"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/sirupsen/logrus"
	"github.com/tosone/minimp3"
	"github.com/zaf/resample"
)

// The engine mixes stereo only; mono input gets duplicated into both
// channels.
const channels = 2

// AudioBuffer is decoded interleaved stereo float32 PCM.
type AudioBuffer struct {
	Samples    []float32
	SampleRate int
}

// FrameCount returns the number of stereo frames.
func (b *AudioBuffer) FrameCount() int {
	return len(b.Samples) / channels
}

// Duration returns the buffer length in seconds.
func (b *AudioBuffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.FrameCount()) / float64(b.SampleRate)
}

// Decode reads an audio file into an interleaved stereo float32 buffer.
// Only MP3 is supported; everything else is an unsupported format error.
func Decode(path string) (*AudioBuffer, error) {
	if path == "" {
		return nil, fmt.Errorf("empty file path")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode open error: %s", err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("NewDecoder error in %s: %s", path, err)
	}

	pcm, err := ioutil.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decode read error in %s: %s", path, err)
	}

	// go-mp3 always emits 16-bit LE stereo
	buf := &AudioBuffer{
		Samples:    pcm16ToFloat32(pcm),
		SampleRate: dec.SampleRate(),
	}

	if len(buf.Samples) == 0 {
		return nil, fmt.Errorf("decode produced no samples for %s", path)
	}

	return buf, nil
}

// DecodeBytes decodes in-memory MP3 data, duplicating mono into both
// channels.
func DecodeBytes(data []byte) (*AudioBuffer, error) {
	dec, pcm, err := minimp3.DecodeFull(data)
	if err != nil {
		return nil, fmt.Errorf("DecodeFull error: %s", err)
	}

	samples := pcm16ToFloat32(pcm)
	if dec.Channels == 1 {
		stereo := make([]float32, len(samples)*2)
		for i, s := range samples {
			stereo[i*2] = s
			stereo[i*2+1] = s
		}
		samples = stereo
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("decode produced no samples")
	}

	return &AudioBuffer{Samples: samples, SampleRate: dec.SampleRate}, nil
}

// Resample converts the buffer to the given rate. The buffer is returned
// unchanged when the rates already match.
func Resample(buf *AudioBuffer, rate int) (*AudioBuffer, error) {
	if buf.SampleRate == rate {
		return buf, nil
	}
	if buf.SampleRate <= 0 || rate <= 0 {
		return nil, fmt.Errorf("bad sample rates %d -> %d", buf.SampleRate, rate)
	}

	logrus.Debugf("resampling %d Hz -> %d Hz, %d frames", buf.SampleRate, rate, buf.FrameCount())

	var out bytes.Buffer
	res, err := resample.New(&out, float64(buf.SampleRate), float64(rate), channels, resample.F32, resample.HighQ)
	if err != nil {
		return nil, fmt.Errorf("resampler init error: %s", err)
	}

	raw := make([]byte, len(buf.Samples)*4)
	for i, s := range buf.Samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(s))
	}

	if _, err = res.Write(raw); err != nil {
		res.Close()
		return nil, fmt.Errorf("resampler write error: %s", err)
	}
	if err = res.Close(); err != nil {
		return nil, fmt.Errorf("resampler close error: %s", err)
	}

	converted := out.Bytes()
	samples := make([]float32, len(converted)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(converted[i*4:]))
	}

	return &AudioBuffer{Samples: samples, SampleRate: rate}, nil
}

// pcm16ToFloat32 converts interleaved 16-bit LE PCM through an audio.Float32
// slice.
func pcm16ToFloat32(pcm []byte) []float32 {
	buf := audio.Float32{}.Make(len(pcm)/2, len(pcm)/2).(audio.Float32)
	for i := 0; i < len(buf); i++ {
		buf[i] = Int16ToFloat32(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return []float32(buf)
}

func Int16ToFloat32(s int16) float32 {
	return float32(s) / float32(math.MaxInt16+1)
}
