package daq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	uberatomic "go.uber.org/atomic"

	"omrongateway/pkg/registry"
	"omrongateway/pkg/storage"
)

// fakeSource returns a canned snapshot, optionally sleeping to simulate a
// slow fan-out.
type fakeSource struct {
	delay time.Duration
	calls uberatomic.Int64
}

func (f *fakeSource) Get(names []string, ids ...string) (registry.Snapshot, error) {
	f.calls.Inc()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	sent := time.Now()
	return registry.Snapshot{
		"oven-1": registry.Reading{
			"Input Monitor":                  12.5,
			registry.RequestSentField:       sent,
			registry.ResponseReceivedField:  sent.Add(2 * time.Millisecond),
		},
	}, nil
}

func TestSchedulerTicksAtTargetRate(t *testing.T) {
	source := &fakeSource{}
	recorder := storage.NewMemoryRecorder()
	s, err := NewScheduler(source, recorder, 8, time.Second)
	require.NoError(t, err)

	s.Start()
	<-s.Done()

	ticks := s.Ticks()
	assert.GreaterOrEqual(t, ticks, int64(7))
	assert.LessOrEqual(t, ticks, int64(9))
	assert.GreaterOrEqual(t, int64(len(recorder.Rows())), ticks-1)
	assert.Zero(t, s.Skipped())
}

func TestSchedulerAnnouncesSchemaFromFirstSnapshot(t *testing.T) {
	recorder := storage.NewMemoryRecorder()
	s, err := NewScheduler(&fakeSource{}, recorder, 8, 200*time.Millisecond)
	require.NoError(t, err)

	s.Start()
	<-s.Done()

	columns := recorder.Columns()
	assert.Equal(t, storage.ColumnFloat, columns["Input Monitor"])
	assert.Equal(t, storage.ColumnTimestamp, columns[registry.RequestSentField])
	assert.Equal(t, storage.ColumnTimestamp, columns[registry.ResponseReceivedField])
}

func TestSchedulerRecordsMidpointEventTime(t *testing.T) {
	recorder := storage.NewMemoryRecorder()
	s, err := NewScheduler(&fakeSource{}, recorder, 8, 300*time.Millisecond)
	require.NoError(t, err)

	s.Start()
	<-s.Done()

	rows := recorder.Rows()
	require.NotEmpty(t, rows)
	row := rows[0]
	sent := row.Values[registry.RequestSentField].(time.Time)
	received := row.Values[registry.ResponseReceivedField].(time.Time)
	assert.Equal(t, sent.Add(received.Sub(sent)/2), row.Time)
}

func TestSchedulerWarnsOnDriftWithoutSkippingPersistence(t *testing.T) {
	// Each fetch takes well over the 125ms an 8 Hz tick allows.
	source := &fakeSource{delay: 300 * time.Millisecond}
	recorder := storage.NewMemoryRecorder()
	s, err := NewScheduler(source, recorder, 8, time.Second)
	require.NoError(t, err)

	s.Start()
	<-s.Done()

	assert.Greater(t, s.Skipped(), int64(0))
	// Every completed tick persisted a batch despite the overrun.
	assert.GreaterOrEqual(t, int64(len(recorder.Rows())), s.Ticks()-1)
}

func TestSchedulerStopCommand(t *testing.T) {
	s, err := NewScheduler(&fakeSource{}, storage.NewMemoryRecorder(), 8, time.Hour)
	require.NoError(t, err)

	s.Start()
	require.NoError(t, s.Stop())

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not observe the stop sentinel within one tick")
	}

	assert.ErrorIs(t, s.Stop(), ErrSchedulerStopped)
}

func TestSchedulerExecutesCommandsBetweenTicks(t *testing.T) {
	s, err := NewScheduler(&fakeSource{}, storage.NewMemoryRecorder(), 8, time.Hour)
	require.NoError(t, err)

	s.Start()
	defer func() { _ = s.Stop() }()

	require.NoError(t, s.Execute(func() (interface{}, error) {
		return "pong", nil
	}))

	select {
	case result := <-s.Results():
		require.NoError(t, result.Err)
		assert.Equal(t, "pong", result.Value)
	case <-time.After(time.Second):
		t.Fatal("command result not delivered")
	}
}

func TestSchedulerLatestSnapshot(t *testing.T) {
	s, err := NewScheduler(&fakeSource{}, storage.NewMemoryRecorder(), 8, 300*time.Millisecond)
	require.NoError(t, err)

	s.Start()
	<-s.Done()

	latest := s.Latest()
	require.Contains(t, latest, "oven-1")
	assert.Equal(t, 12.5, latest["oven-1"]["Input Monitor"])
}

func TestNewSchedulerRejectsRateAboveCeiling(t *testing.T) {
	_, err := NewScheduler(&fakeSource{}, storage.NewMemoryRecorder(), 9, time.Second)
	assert.ErrorIs(t, err, ErrRateOutOfRange)

	_, err = NewScheduler(&fakeSource{}, storage.NewMemoryRecorder(), 0, time.Second)
	assert.ErrorIs(t, err, ErrRateOutOfRange)
}
