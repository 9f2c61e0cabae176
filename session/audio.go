package session

import (
	"encoding/binary"
	"fmt"

	"github.com/go-audio/audio"

	"github.com/dfcx-bridge/go-bridge/metrics"
)

// Resampler converts host-rate PCM16 mono frames to the 16 kHz stream rate.
// Implementations may keep state between frames.
type Resampler interface {
	Process(pcm []byte) ([]byte, error)
	Close()
}

// ResamplerFactory creates a Resampler for one session.
type ResamplerFactory func(inputRate int, outputRate int) (Resampler, error)

// WriteFrame forwards one frame of host audio to Dialogflow and reports
// whether it was sent. The frame is dropped rather than waiting when the
// session lock is busy, so the host media callback never blocks on a
// rotation or teardown.
func (session *SessionObject) WriteFrame(pcm []byte) bool {

	if !session.TryLock() {
		metrics.Default.FramesDropped.WithLabelValues("busy").Inc()
		return false
	}
	defer session.Unlock()

	if !session.attached {
		metrics.Default.FramesDropped.WithLabelValues("detached").Inc()
		return false
	}

	resampled, err := session.resampler.Process(pcm)
	if err != nil {
		getLogger().Warn("dropping frame that could not be resampled",
			"sessionId", session.SessionId,
			"error", err)
		metrics.Default.FramesDropped.WithLabelValues("resample").Inc()
		return false
	}

	request, ok := session.controller.PrepareOutboundAudio(resampled)
	if !ok {
		metrics.Default.FramesDropped.WithLabelValues(session.controller.State().Mode.String()).Inc()
		return false
	}

	if !session.controller.Transport().Write(request) {
		metrics.Default.FramesDropped.WithLabelValues("write").Inc()
		return false
	}

	metrics.Default.FramesSent.Inc()
	return true
}

// NewLinearResampler returns a stateful linear interpolation resampler.
func NewLinearResampler(inputRate int, outputRate int) (Resampler, error) {

	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidSampleRate, inputRate, outputRate)
	}

	return &linearResampler{
		step:         float64(inputRate) / float64(outputRate),
		inputFormat:  &audio.Format{NumChannels: 1, SampleRate: inputRate},
		outputFormat: &audio.Format{NumChannels: 1, SampleRate: outputRate},
	}, nil
}

type linearResampler struct {
	step         float64
	inputFormat  *audio.Format
	outputFormat *audio.Format

	// position of the next output sample, relative to the first sample of
	// the next frame; -1 addresses previous.
	position float64
	previous int
	closed   bool
}

func (resampler *linearResampler) Process(pcm []byte) ([]byte, error) {

	if resampler.closed {
		return nil, fmt.Errorf("resampler closed")
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("odd PCM16 frame length %d", len(pcm))
	}

	input := PCM16ToIntBuffer(pcm, resampler.inputFormat)
	if resampler.step == 1 {
		return IntBufferToPCM16(input), nil
	}

	samples := input.Data
	count := len(samples)
	if count == 0 {
		return nil, nil
	}

	output := &audio.IntBuffer{
		Format:         resampler.outputFormat,
		Data:           make([]int, 0, int(float64(count)/resampler.step)+2),
		SourceBitDepth: 16,
	}

	sampleAt := func(index int) int {
		if index < 0 {
			return resampler.previous
		}
		return samples[index]
	}

	for resampler.position < float64(count-1) {
		index := int(resampler.position)
		if resampler.position < 0 {
			index = -1
		}
		fraction := resampler.position - float64(index)
		current := float64(sampleAt(index))
		next := float64(sampleAt(index + 1))
		output.Data = append(output.Data, int(current+(next-current)*fraction))
		resampler.position += resampler.step
	}

	resampler.position -= float64(count)
	resampler.previous = samples[count-1]

	return IntBufferToPCM16(output), nil
}

func (resampler *linearResampler) Close() {

	resampler.closed = true
}

// PCM16ToIntBuffer decodes little-endian signed 16-bit PCM.
func PCM16ToIntBuffer(pcm []byte, format *audio.Format) *audio.IntBuffer {

	data := make([]int, len(pcm)/2)
	for idx := range data {
		data[idx] = int(int16(binary.LittleEndian.Uint16(pcm[idx*2:])))
	}
	return &audio.IntBuffer{Format: format, Data: data, SourceBitDepth: 16}
}

// IntBufferToPCM16 encodes samples as little-endian signed 16-bit PCM,
// clipping out of range values.
func IntBufferToPCM16(buffer *audio.IntBuffer) []byte {

	pcm := make([]byte, len(buffer.Data)*2)
	for idx, sample := range buffer.Data {
		if sample > 32767 {
			sample = 32767
		} else if sample < -32768 {
			sample = -32768
		}
		binary.LittleEndian.PutUint16(pcm[idx*2:], uint16(int16(sample)))
	}
	return pcm
}
