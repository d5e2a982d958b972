package benchmark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mwiater/mockbench/internal/appconfig"
	"github.com/mwiater/mockbench/internal/query"
	"github.com/mwiater/mockbench/internal/server"
	"github.com/mwiater/mockbench/internal/speed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSpeeds struct {
	applied []speed.Speeds
	failOn  map[speed.Speeds]error
}

func (f *fakeSpeeds) Apply(s speed.Speeds) error {
	if err := f.failOn[s]; err != nil {
		return err
	}
	f.applied = append(f.applied, s)
	return nil
}

type fakeHandle struct {
	lc *fakeLifecycle
}

func (h *fakeHandle) Stop(context.Context) error {
	h.lc.events = append(h.lc.events, "stop")
	h.lc.running = false
	return h.lc.stopErr
}

type fakeLifecycle struct {
	events     []string
	running    bool
	startErrs  []error
	releaseErr error
	stopErr    error
	starts     int
}

func (l *fakeLifecycle) Start(context.Context) (Stopper, error) {
	l.events = append(l.events, "start")
	i := l.starts
	l.starts++
	if i < len(l.startErrs) && l.startErrs[i] != nil {
		return nil, l.startErrs[i]
	}
	l.running = true
	return &fakeHandle{lc: l}, nil
}

func (l *fakeLifecycle) Release(context.Context) error {
	l.events = append(l.events, "release")
	return l.releaseErr
}

type fakeClient struct {
	lc      *fakeLifecycle
	calls   []string
	fail    map[int]bool
	elapsed func(n int) float64
}

func (c *fakeClient) Run(_ context.Context, prompt string) query.Result {
	c.calls = append(c.calls, prompt)
	n := len(c.calls)
	res := query.Result{Query: prompt, ElapsedSeconds: 1}
	if c.elapsed != nil {
		res.ElapsedSeconds = c.elapsed(n)
	}
	if c.lc != nil && !c.lc.running {
		res.Error = "server not running"
		return res
	}
	if c.fail[n] {
		res.Error = "exit status 1"
		return res
	}
	res.Success = true
	return res
}

type fakeRecorder struct {
	results []ConfigResult
	err     error
}

func (r *fakeRecorder) AppendConfiguration(res ConfigResult) error {
	if r.err != nil {
		return r.err
	}
	r.results = append(r.results, res)
	return nil
}

type fakeClock struct {
	marks int
	value float64
}

func (c *fakeClock) Mark() error { c.marks++; return nil }

func (c *fakeClock) LastAPISeconds() (float64, bool, error) { return c.value, true, nil }

func newTestRunner(presets []appconfig.Preset) (*Runner, *fakeSpeeds, *fakeLifecycle, *fakeClient, *fakeRecorder) {
	sp := &fakeSpeeds{}
	lc := &fakeLifecycle{}
	cl := &fakeClient{lc: lc}
	rec := &fakeRecorder{}
	r := &Runner{
		Presets:  presets,
		Queries:  appconfig.DefaultQueries(),
		Speeds:   sp,
		Server:   lc,
		Client:   cl,
		Recorder: rec,
		Out:      &bytes.Buffer{},
	}
	return r, sp, lc, cl, rec
}

func TestRunAllPresets(t *testing.T) {
	presets := appconfig.DefaultPresets()
	r, sp, lc, cl, rec := newTestRunner(presets)

	run, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, run.Configurations, len(presets))
	assert.Empty(t, run.Skipped)
	assert.Len(t, rec.results, len(presets))
	assert.Len(t, cl.calls, len(presets)*10)
	assert.Equal(t, appconfig.DefaultQueries(), cl.calls[:10])

	for i, p := range presets {
		assert.Equal(t, speed.Speeds{Prefill: p.Prefill, Decode: p.Decode}, sp.applied[i])
		assert.Equal(t, p, run.Configurations[i].Preset)
		assert.Equal(t, 10, run.Configurations[i].Summary.SuccessCount)
	}

	var want []string
	for range presets {
		want = append(want, "release", "start", "stop")
	}
	assert.Equal(t, want, lc.events)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestRunConfigurationAllQueriesFail(t *testing.T) {
	r, _, _, cl, rec := newTestRunner(nil)
	cl.fail = map[int]bool{}
	for i := 1; i <= 10; i++ {
		cl.fail[i] = true
	}

	res, err := r.RunConfiguration(context.Background(), appconfig.Preset{Name: "Slow", Prefill: 500, Decode: 25})
	require.NoError(t, err)

	assert.Equal(t, 10, res.Summary.QueryCount)
	assert.Equal(t, 0, res.Summary.SuccessCount)
	assert.False(t, res.Summary.HasTimings())
	assert.Zero(t, res.Summary.Average)
	assert.Zero(t, res.Summary.Min)
	assert.Zero(t, res.Summary.Max)
	require.Len(t, rec.results, 1)
	assert.Contains(t, r.Out.(*bytes.Buffer).String(), "All queries failed (0/10)")
}

func TestRunConfigurationMixedFailures(t *testing.T) {
	r, _, _, cl, _ := newTestRunner(nil)
	cl.fail = map[int]bool{3: true, 7: true}
	cl.elapsed = func(n int) float64 {
		if n == 3 || n == 7 {
			return 10
		}
		return float64(n)
	}

	res, err := r.RunConfiguration(context.Background(), appconfig.Preset{Name: "Baseline", Prefill: 1000, Decode: 50})
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, 8, s.SuccessCount)
	assert.Equal(t, 10, s.QueryCount)
	// 1+2+4+5+6+8+9+10
	assert.InDelta(t, 45.0, s.Total, 1e-9)
	assert.InDelta(t, 45.0/8, s.Average, 1e-9)
	assert.InDelta(t, 1.0, s.Min, 1e-9)
	assert.InDelta(t, 10.0, s.Max, 1e-9)

	for i, qr := range res.Results {
		assert.Equal(t, i+1, qr.Index)
	}
	assert.False(t, res.Results[2].Success)
	assert.False(t, res.Results[6].Success)
}

func TestRunSkipsConfigurationWhenStartFails(t *testing.T) {
	presets := appconfig.DefaultPresets()[:2]
	r, _, lc, cl, rec := newTestRunner(presets)
	lc.startErrs = []error{server.ErrNotReady}

	run, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, run.Skipped, 1)
	assert.Equal(t, presets[0], run.Skipped[0].Preset)
	assert.Contains(t, run.Skipped[0].Reason, "start server")

	require.Len(t, rec.results, 1)
	assert.Equal(t, presets[1], rec.results[0].Preset)
	assert.Len(t, cl.calls, 10)
	assert.Equal(t, []string{"release", "start", "release", "release", "start", "stop"}, lc.events)
}

func TestRunSkipsConfigurationWhenSpeedsMissing(t *testing.T) {
	presets := appconfig.DefaultPresets()[:2]
	r, sp, lc, _, rec := newTestRunner(presets)
	first := speed.Speeds{Prefill: presets[0].Prefill, Decode: presets[0].Decode}
	sp.failOn = map[speed.Speeds]error{
		first: &speed.PatternNotFoundError{Path: "engine.py", Missing: []string{"DECODE_TOKENS_PER_SEC"}},
	}

	run, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, run.Skipped, 1)
	var pnf *speed.PatternNotFoundError
	assert.Contains(t, run.Skipped[0].Reason, "apply speeds")
	assert.Len(t, rec.results, 1)
	assert.Equal(t, []string{"release", "start", "stop"}, lc.events)

	_, err = r.RunConfiguration(context.Background(), presets[0])
	var skip *SkipError
	require.ErrorAs(t, err, &skip)
	assert.ErrorAs(t, err, &pnf)
}

func TestRunAbortsWhenPortStaysBusy(t *testing.T) {
	presets := appconfig.DefaultPresets()
	r, _, lc, cl, rec := newTestRunner(presets)
	lc.releaseErr = fmt.Errorf("port 127.0.0.1:8000: %w", server.ErrPortBusy)

	run, err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, server.ErrPortBusy)
	assert.Empty(t, run.Configurations)
	assert.Empty(t, cl.calls)
	assert.Empty(t, rec.results)
	assert.Equal(t, []string{"release"}, lc.events)
}

func TestRunAbortsWhenStopLeavesPortBusy(t *testing.T) {
	presets := appconfig.DefaultPresets()
	r, _, lc, _, rec := newTestRunner(presets)
	lc.stopErr = server.ErrPortBusy

	run, err := r.Run(context.Background())
	require.ErrorIs(t, err, server.ErrPortBusy)
	require.Len(t, run.Configurations, 1)
	assert.Len(t, rec.results, 1)
	assert.Equal(t, []string{"release", "start", "stop"}, lc.events)
}

func TestRunConfigurationProbeFailureSkips(t *testing.T) {
	r, _, lc, cl, rec := newTestRunner(nil)
	r.Probe = func(context.Context) error { return errors.New("list models: connection refused") }

	_, err := r.RunConfiguration(context.Background(), appconfig.DefaultPresets()[2])
	var skip *SkipError
	require.ErrorAs(t, err, &skip)
	assert.Equal(t, "health check", skip.Stage)
	assert.Empty(t, cl.calls)
	assert.Empty(t, rec.results)
	assert.Equal(t, []string{"release", "start", "stop"}, lc.events)
}

func TestRunConfigurationRecorderFailureIsFatal(t *testing.T) {
	r, _, lc, _, rec := newTestRunner(appconfig.DefaultPresets())
	rec.err = errors.New("disk full")

	run, err := r.Run(context.Background())
	require.Error(t, err)
	var skip *SkipError
	assert.False(t, errors.As(err, &skip))
	assert.Len(t, run.Configurations, 1)
	assert.Equal(t, []string{"release", "start", "stop"}, lc.events)
}

func TestRunConfigurationRecordsAPITime(t *testing.T) {
	r, _, _, cl, _ := newTestRunner(nil)
	clock := &fakeClock{value: 0.25}
	r.APIClock = clock
	cl.fail = map[int]bool{5: true}

	res, err := r.RunConfiguration(context.Background(), appconfig.DefaultPresets()[3])
	require.NoError(t, err)

	assert.Equal(t, 10, clock.marks)
	assert.Nil(t, res.Results[4].APISeconds)
	require.NotNil(t, res.Results[0].APISeconds)
	assert.InDelta(t, 0.25, *res.Results[0].APISeconds, 1e-9)
	require.NotNil(t, res.Summary.APIAverage)
	require.NotNil(t, res.Summary.OverheadAverage)
	assert.InDelta(t, 0.75, *res.Summary.OverheadAverage, 1e-9)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	r, _, lc, cl, _ := newTestRunner(appconfig.DefaultPresets())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, cl.calls)
	assert.Empty(t, lc.events)
}

func TestRunConfigurationPrintsMarkers(t *testing.T) {
	r, _, _, cl, _ := newTestRunner(nil)
	cl.fail = map[int]bool{2: true}

	_, err := r.RunConfiguration(context.Background(), appconfig.DefaultPresets()[0])
	require.NoError(t, err)

	out := r.Out.(*bytes.Buffer).String()
	assert.Contains(t, out, "Testing configuration: Slow")
	assert.Contains(t, out, "[1/10] Running: 'search for class definitions'...")
	assert.Contains(t, out, "Failed (exit status 1)")
	assert.Contains(t, out, "Success rate:  90.0% (9/10)")
}
