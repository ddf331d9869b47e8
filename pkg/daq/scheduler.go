// Package daq runs the fixed-rate acquisition loop. One scheduler owns one
// polling run: it snapshots the registry at the target rate, hands each
// batch to the recorder, and stays controllable through a command channel
// while the loop runs.
package daq

import (
	"time"

	uberatomic "go.uber.org/atomic"
	"k8s.io/klog/v2"

	"omrongateway/pkg/registry"
	"omrongateway/pkg/storage"
)

// Source is the snapshot provider the loop polls. The registry satisfies
// it.
type Source interface {
	Get(names []string, ids ...string) (registry.Snapshot, error)
}

// Publisher receives each persisted batch, for forwarding to a broker.
type Publisher interface {
	Publish(rows []storage.Row)
}

// Command is one control-queue entry. A nil Invoke is the stop sentinel;
// otherwise Invoke runs on the loop's own goroutine between ticks and its
// outcome is delivered once on the result channel.
type Command struct {
	Invoke func() (interface{}, error)
}

// Result is the outcome of one accepted command.
type Result struct {
	Value interface{}
	Err   error
}

type Option func(*Scheduler)

func WithNames(names []string) Option {
	return func(s *Scheduler) { s.names = names }
}

func WithPublisher(p Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// Scheduler state is owned by the loop goroutine; callers interact only
// through the command channel and the atomic latest-snapshot slot.
type Scheduler struct {
	source    Source
	recorder  storage.Recorder
	publisher Publisher
	names     []string
	rate      float64
	duration  time.Duration

	commands chan *Command
	results  chan *Result
	done     chan struct{}

	latest  uberatomic.Value
	ticks   uberatomic.Int64
	skipped uberatomic.Int64
	running uberatomic.Bool
}

func NewScheduler(source Source, recorder storage.Recorder, rate float64, duration time.Duration, opts ...Option) (*Scheduler, error) {
	if rate <= 0 || rate > MaxRate {
		return nil, ErrRateOutOfRange
	}
	s := &Scheduler{
		source:   source,
		recorder: recorder,
		rate:     rate,
		duration: duration,
		commands: make(chan *Command, 16),
		results:  make(chan *Result, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the loop. The first snapshot announces the recorder
// schema before any timed tick runs.
func (s *Scheduler) Start() {
	s.running.Store(true)
	go s.loop()
}

// Stop enqueues the stop sentinel. The loop observes it within one tick.
func (s *Scheduler) Stop() error {
	if !s.running.Load() {
		return ErrSchedulerStopped
	}
	s.commands <- &Command{}
	return nil
}

// Execute queues fn for the loop goroutine, bypassing the regular poll.
// The outcome arrives once on Results.
func (s *Scheduler) Execute(fn func() (interface{}, error)) error {
	if !s.running.Load() {
		return ErrSchedulerStopped
	}
	s.commands <- &Command{Invoke: fn}
	return nil
}

// Results delivers one entry per accepted command.
func (s *Scheduler) Results() <-chan *Result {
	return s.results
}

// Done closes when the loop has exited, whether by duration or by stop.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Latest returns the most recent snapshot, nil before the first poll.
func (s *Scheduler) Latest() registry.Snapshot {
	if v := s.latest.Load(); v != nil {
		return v.(registry.Snapshot)
	}
	return nil
}

// Ticks returns the number of completed polls.
func (s *Scheduler) Ticks() int64 {
	return s.ticks.Load()
}

// Skipped returns the number of ticks the loop fell behind by.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

func (s *Scheduler) loop() {
	defer close(s.done)
	defer s.running.Store(false)

	if err := s.announceSchema(); err != nil {
		klog.V(1).InfoS("Failed to announce schema", "err", err)
	}

	interval := time.Duration(float64(time.Second) / s.rate)
	deadline := time.Now().Add(s.duration)
	next := time.Now().Add(interval)
	persistDone := make(chan struct{})
	close(persistDone)

	for {
		if cmd, stop := s.checkCommands(next); stop {
			<-persistDone
			return
		} else if cmd {
			continue
		}

		if !time.Now().Before(deadline) {
			<-persistDone
			return
		}

		snapshot, err := s.source.Get(s.names)
		if err != nil {
			klog.V(2).InfoS("Snapshot incomplete", "err", err)
		}
		s.latest.Store(snapshot)
		s.ticks.Inc()

		rows := rowsFromSnapshot(snapshot)

		// Overlap this batch's persistence with the next fetch, but never
		// run two writes at once.
		<-persistDone
		persistDone = make(chan struct{})
		go func(rows []storage.Row, done chan struct{}) {
			defer close(done)
			s.persist(rows)
		}(rows, persistDone)

		next = next.Add(interval)
		for !next.After(time.Now()) {
			s.skipped.Inc()
			klog.V(1).InfoS("Acquisition tick overran its interval", "tick", s.ticks.Load(), "interval", interval)
			next = next.Add(interval)
		}
	}
}

func (s *Scheduler) announceSchema() error {
	snapshot, err := s.source.Get(s.names)
	if err != nil {
		klog.V(2).InfoS("Discovery snapshot incomplete", "err", err)
	}
	s.latest.Store(snapshot)

	plain := make(map[string]map[string]interface{}, len(snapshot))
	for device, reading := range snapshot {
		plain[device] = reading
	}
	return s.recorder.EnsureSchema(storage.InferSchema(plain))
}

// checkCommands drains the control queue. Before the next tick deadline it
// waits; at or past the deadline it only polls. Returns (handled, stop).
func (s *Scheduler) checkCommands(next time.Time) (bool, bool) {
	wait := time.Until(next)
	if wait <= 0 {
		select {
		case cmd := <-s.commands:
			return true, s.handle(cmd)
		default:
			return false, false
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case cmd := <-s.commands:
		return true, s.handle(cmd)
	case <-timer.C:
		return false, false
	}
}

func (s *Scheduler) handle(cmd *Command) bool {
	if cmd.Invoke == nil {
		klog.V(2).InfoS("Acquisition stopped by command")
		return true
	}
	value, err := cmd.Invoke()
	s.results <- &Result{Value: value, Err: err}
	return false
}

func (s *Scheduler) persist(rows []storage.Row) {
	if len(rows) == 0 {
		return
	}
	if err := s.recorder.WriteRows(rows); err != nil {
		klog.V(1).InfoS("Failed to persist batch", "err", err)
	}
	if s.publisher != nil {
		s.publisher.Publish(rows)
	}
}

// rowsFromSnapshot keys each row on the midpoint of the device's
// request-sent and response-received instants.
func rowsFromSnapshot(snapshot registry.Snapshot) []storage.Row {
	rows := make([]storage.Row, 0, len(snapshot))
	for device, reading := range snapshot {
		eventTime := time.Now()
		sent, okSent := reading[registry.RequestSentField].(time.Time)
		received, okReceived := reading[registry.ResponseReceivedField].(time.Time)
		if okSent && okReceived {
			eventTime = sent.Add(received.Sub(sent) / 2)
		}

		values := make(map[string]interface{}, len(reading))
		for k, v := range reading {
			values[k] = v
		}
		rows = append(rows, storage.Row{Time: eventTime, Device: device, Values: values})
	}
	return rows
}
