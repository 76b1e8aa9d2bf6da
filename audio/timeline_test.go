package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(n int, v float64) Chunk {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = v
	}
	return Chunk{Samples: samples, SampleRate: 10}
}

func TestTimelineClockAdvancesWithStream(t *testing.T) {
	tl := NewTimeline(10)
	assert.Equal(t, 0.0, tl.Now())

	buf := make([][2]float64, 5)
	tl.Stream(buf)
	assert.InDelta(t, 0.5, tl.Now(), 1e-9)
}

func TestTimelinePlaysAtScheduledTime(t *testing.T) {
	tl := NewTimeline(10)
	require.NoError(t, tl.Schedule(ramp(2, 1), 0.3))

	buf := make([][2]float64, 6)
	tl.Stream(buf)

	want := []float64{0, 0, 0, 1, 1, 0}
	for i, w := range want {
		assert.Equal(t, w, buf[i][0], "sample %d", i)
		assert.Equal(t, w, buf[i][1], "sample %d", i)
	}
}

func TestTimelineChunkSpansStreamCalls(t *testing.T) {
	tl := NewTimeline(10)
	require.NoError(t, tl.Schedule(ramp(4, 0.25), 0))

	buf := make([][2]float64, 3)
	tl.Stream(buf)
	assert.Equal(t, 1, tl.Pending())
	tl.Stream(buf)

	assert.Equal(t, 0.25, buf[0][0])
	assert.Equal(t, 0.0, buf[1][0])
	assert.Equal(t, 0, tl.Pending())
}

func TestTimelineDropPendingKeepsStartedChunks(t *testing.T) {
	tl := NewTimeline(10)
	require.NoError(t, tl.Schedule(ramp(4, 1), 0))
	require.NoError(t, tl.Schedule(ramp(4, 1), 0.4))

	buf := make([][2]float64, 2)
	tl.Stream(buf)
	tl.DropPending()
	assert.Equal(t, 1, tl.Pending())

	buf = make([][2]float64, 8)
	tl.Stream(buf)
	assert.Equal(t, []float64{1, 1, 0, 0}, []float64{buf[0][0], buf[1][0], buf[2][0], buf[3][0]})
}

func TestTimelineNeverSchedulesInThePast(t *testing.T) {
	tl := NewTimeline(10)
	tl.Stream(make([][2]float64, 5))

	require.NoError(t, tl.Schedule(ramp(1, 1), 0.1))
	buf := make([][2]float64, 1)
	tl.Stream(buf)
	assert.Equal(t, 1.0, buf[0][0])
}

func TestTimelineClose(t *testing.T) {
	tl := NewTimeline(10)
	require.NoError(t, tl.Schedule(ramp(1, 1), 0))
	require.NoError(t, tl.Close())

	assert.ErrorIs(t, tl.Schedule(ramp(1, 1), 0), ErrOutputClosed)
	n, ok := tl.Stream(make([][2]float64, 4))
	assert.False(t, ok)
	assert.Zero(t, n)
}

func TestResampleIdentity(t *testing.T) {
	in := []float64{0.1, 0.2}
	assert.Equal(t, in, Resample(in, 16000, 16000))
}

func TestResamplePCMLength(t *testing.T) {
	out, err := ResamplePCM(make([]byte, 2*2400), 24000, 8000)
	require.NoError(t, err)
	assert.InDelta(t, 2*800, len(out), 40)

	_, err = ResamplePCM([]byte{1}, 24000, 8000)
	assert.ErrorIs(t, err, ErrDecode)
}
