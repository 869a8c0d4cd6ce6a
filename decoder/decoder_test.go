package decoder

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInt16ToFloat32(t *testing.T) {
	assert.Equal(t, float32(0), Int16ToFloat32(0))
	assert.InDelta(t, 1.0, Int16ToFloat32(32767), 1e-3)
	assert.Equal(t, float32(-1), Int16ToFloat32(-32768))
	assert.InDelta(t, 0.5, Int16ToFloat32(16384), 1e-3)
}

func TestPCM16ToFloat32(t *testing.T) {
	pcm := make([]byte, 8)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(0))
	binary.LittleEndian.PutUint16(pcm[2:], uint16(16384))
	binary.LittleEndian.PutUint16(pcm[4:], uint16(int16(-16384)))
	binary.LittleEndian.PutUint16(pcm[6:], uint16(int16(-32768)))

	samples := pcm16ToFloat32(pcm)
	assert.Len(t, samples, 4)
	assert.Equal(t, float32(0), samples[0])
	assert.InDelta(t, 0.5, samples[1], 1e-6)
	assert.InDelta(t, -0.5, samples[2], 1e-6)
	assert.Equal(t, float32(-1), samples[3])
}

func TestAudioBuffer(t *testing.T) {
	buf := &AudioBuffer{
		Samples:    make([]float32, 44100*2),
		SampleRate: 44100,
	}
	assert.Equal(t, 44100, buf.FrameCount())
	assert.InDelta(t, 1.0, buf.Duration(), 1e-9)

	empty := &AudioBuffer{}
	assert.Equal(t, 0, empty.FrameCount())
	assert.Equal(t, 0.0, empty.Duration())
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode("")
	assert.Error(t, err)

	_, err = Decode("/nonexistent/file.mp3")
	assert.Error(t, err)

	_, err = DecodeBytes([]byte("not an mp3"))
	assert.Error(t, err)
}

func TestResampleNoop(t *testing.T) {
	buf := &AudioBuffer{Samples: []float32{0, 0, 1, 1}, SampleRate: 44100}
	out, err := Resample(buf, 44100)
	assert.NoError(t, err)
	assert.Equal(t, buf, out)

	_, err = Resample(&AudioBuffer{SampleRate: 0}, 44100)
	assert.Error(t, err)
}
