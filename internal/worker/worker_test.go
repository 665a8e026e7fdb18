package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ralarm/internal/alarm"
	"ralarm/internal/metrics"
)

func testConfig(t *testing.T, policy alarm.MissingDataPolicy) alarm.Config {
	t.Helper()
	cfg, err := alarm.NewBuilder().
		Threshold(10).
		ComparisonOperator(alarm.GreaterThan).
		EvaluationPeriods(3).
		DatapointsToAlarm(2).
		TreatMissingData(policy).
		Build()
	require.NoError(t, err)
	return cfg
}

func TestPool_EvaluateInOrder(t *testing.T) {
	pool := NewPool(Config{Workers: 2, QueueSize: 4})
	require.NoError(t, pool.Register("cpu", testConfig(t, alarm.Breaching)))
	pool.Start()
	defer pool.Stop()

	ctx := context.Background()
	values := []alarm.Sample{alarm.Value(1), alarm.Value(11), alarm.NoData(), alarm.Value(1), alarm.Value(2)}
	want := []alarm.State{alarm.StateOK, alarm.StateOK, alarm.StateAlarm, alarm.StateAlarm, alarm.StateOK}

	for i, v := range values {
		r, err := pool.Evaluate(ctx, Sample{Alarm: "cpu", Timestamp: int64(i), Value: v})
		require.NoError(t, err)
		assert.Equal(t, want[i], r.State, "feed %d", i+1)
	}

	stats := pool.Stats()
	assert.Equal(t, uint64(5), stats.Processed)
	assert.Equal(t, uint64(2), stats.Transitions)
	assert.Equal(t, 1, stats.Alarms)
}

func TestPool_TransitionHandler(t *testing.T) {
	var (
		mu  sync.Mutex
		got []Transition
	)
	pool := NewPool(Config{
		Workers: 1,
		OnTransition: func(tr Transition) {
			mu.Lock()
			got = append(got, tr)
			mu.Unlock()
		},
	})
	require.NoError(t, pool.Register("disk", testConfig(t, alarm.NotBreaching)))
	pool.Start()

	ctx := context.Background()
	for i, v := range []float64{20, 20, 1, 1} {
		require.NoError(t, pool.Submit(ctx, Sample{Alarm: "disk", Timestamp: int64(100 + i), Value: alarm.Value(v)}))
	}
	pool.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, alarm.StateOK, got[0].From)
	assert.Equal(t, alarm.StateAlarm, got[0].To)
	assert.Equal(t, int64(101), got[0].Timestamp)
	assert.Equal(t, alarm.StateOK, got[1].To)
	assert.Equal(t, int64(103), got[1].Timestamp)
	assert.NotEmpty(t, got[0].ID)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

func TestPool_IgnoredSamples(t *testing.T) {
	pool := NewPool(Config{Workers: 1})
	require.NoError(t, pool.Register("ignore-me", testConfig(t, alarm.Ignore)))
	pool.Start()
	defer pool.Stop()

	before := testutil.ToFloat64(metrics.SamplesTotal.WithLabelValues("ignore-me", "ignored"))

	r, err := pool.Evaluate(context.Background(), Sample{Alarm: "ignore-me", Value: alarm.NoData()})
	require.NoError(t, err)
	assert.True(t, r.Ignored)
	assert.Equal(t, alarm.Missing, r.Classification)
	assert.False(t, r.Changed)

	after := testutil.ToFloat64(metrics.SamplesTotal.WithLabelValues("ignore-me", "ignored"))
	assert.Equal(t, before+1, after)

	snap, err := pool.Snapshot(context.Background(), "ignore-me")
	require.NoError(t, err)
	assert.Empty(t, snap.Datapoints)
}

func TestPool_Errors(t *testing.T) {
	pool := NewPool(Config{Workers: 1})
	cfg := testConfig(t, alarm.MissingState)

	require.ErrorIs(t, pool.Register("", cfg), ErrEmptyName)
	require.NoError(t, pool.Register("a", cfg))
	require.ErrorIs(t, pool.Register("a", cfg), ErrDuplicateAlarm)

	pool.Start()
	_, err := pool.Evaluate(context.Background(), Sample{Alarm: "nope", Value: alarm.Value(1)})
	require.ErrorIs(t, err, ErrUnknownAlarm)

	pool.Stop()
	require.ErrorIs(t, pool.Submit(context.Background(), Sample{Alarm: "a"}), ErrPoolStopped)
	require.ErrorIs(t, pool.Register("b", cfg), ErrPoolStopped)
	assert.Equal(t, uint64(2), pool.Stats().Rejected)
}

func TestPool_SubmitHonoursContext(t *testing.T) {
	pool := NewPool(Config{Workers: 1, QueueSize: 1})
	require.NoError(t, pool.Register("a", testConfig(t, alarm.Breaching)))
	defer pool.Stop()

	// not started: the single slot fills and the next send blocks
	require.NoError(t, pool.Submit(context.Background(), Sample{Alarm: "a", Value: alarm.Value(1)}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, pool.Submit(ctx, Sample{Alarm: "a", Value: alarm.Value(1)}), context.DeadlineExceeded)
}

func TestPool_PanicInHandlerIsRecovered(t *testing.T) {
	pool := NewPool(Config{
		Workers:  1,
		OnResult: func(Result) { panic("boom") },
	})
	require.NoError(t, pool.Register("a", testConfig(t, alarm.Breaching)))
	pool.Start()
	defer pool.Stop()

	before := testutil.ToFloat64(metrics.PanicsRecovered.WithLabelValues("worker"))

	_, err := pool.Evaluate(context.Background(), Sample{Alarm: "a", Value: alarm.Value(1)})
	require.ErrorIs(t, err, ErrEvaluation)

	// the worker survives and keeps serving the alarm
	_, err = pool.Evaluate(context.Background(), Sample{Alarm: "a", Value: alarm.Value(1)})
	require.ErrorIs(t, err, ErrEvaluation)
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.PanicsRecovered.WithLabelValues("worker")))
}

func TestPool_ManyAlarmsConcurrently(t *testing.T) {
	const alarms, feeds = 16, 50

	pool := NewPool(Config{Workers: 4, QueueSize: 8})
	for i := 0; i < alarms; i++ {
		require.NoError(t, pool.Register(fmt.Sprintf("alarm-%d", i), testConfig(t, alarm.Breaching)))
	}
	pool.Start()

	var wg sync.WaitGroup
	for i := 0; i < alarms; i++ {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for j := 0; j < feeds; j++ {
				assert.NoError(t, pool.Submit(context.Background(), Sample{Alarm: name, Timestamp: int64(j), Value: alarm.Value(11)}))
			}
		}(fmt.Sprintf("alarm-%d", i))
	}
	wg.Wait()
	pool.Stop()

	assert.Equal(t, uint64(alarms*feeds), pool.Stats().Processed)
	assert.Equal(t, uint64(alarms), pool.Stats().Transitions)
	assert.Len(t, pool.Alarms(), alarms)
}

func TestPool_StopBeforeStartWithFullQueue(t *testing.T) {
	pool := NewPool(Config{Workers: 1, QueueSize: 1})
	require.NoError(t, pool.Register("a", testConfig(t, alarm.Breaching)))

	require.NoError(t, pool.Submit(context.Background(), Sample{Alarm: "a", Value: alarm.Value(1)}))

	blocked := make(chan error, 1)
	go func() {
		blocked <- pool.Submit(context.Background(), Sample{Alarm: "a", Value: alarm.Value(2)})
	}()

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while a Submit was blocked on a full queue")
	}
	select {
	case err := <-blocked:
		require.ErrorIs(t, err, ErrPoolStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Submit did not return after Stop")
	}
	assert.Zero(t, pool.Stats().Processed)
}

func TestPool_EvaluateBeforeStartFailsOnStop(t *testing.T) {
	pool := NewPool(Config{Workers: 1, QueueSize: 1})
	require.NoError(t, pool.Register("a", testConfig(t, alarm.Breaching)))

	errc := make(chan error, 1)
	go func() {
		_, err := pool.Evaluate(context.Background(), Sample{Alarm: "a", Value: alarm.Value(1)})
		errc <- err
	}()

	pool.Stop()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrPoolStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("Evaluate on an unstarted pool did not return after Stop")
	}
}

func TestPool_StopDrainsQueuedJobs(t *testing.T) {
	gate := make(chan struct{})
	var first sync.Once
	pool := NewPool(Config{
		Workers:   1,
		QueueSize: 8,
		OnResult:  func(Result) { first.Do(func() { <-gate }) },
	})
	require.NoError(t, pool.Register("a", testConfig(t, alarm.Breaching)))
	pool.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(context.Background(), Sample{Alarm: "a", Timestamp: int64(i), Value: alarm.Value(11)}))
	}

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the queued jobs were processed")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the worker was released")
	}
	assert.Equal(t, uint64(5), pool.Stats().Processed)
	assert.Equal(t, uint64(1), pool.Stats().Transitions)
}
