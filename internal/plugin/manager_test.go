package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castbot/castbot/internal/events"
	"github.com/castbot/castbot/sdk"
)

// callLog records lifecycle calls across plugins so ordering can be asserted.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) record(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, entry)
}

func (l *callLog) entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type testPlugin struct {
	meta    sdk.Metadata
	log     *callLog
	initErr error
	onInit  func(ctx context.Context, host sdk.Host) error
}

func (p *testPlugin) Metadata() sdk.Metadata { return p.meta }

func (p *testPlugin) Init(ctx context.Context, host sdk.Host) error {
	if p.log != nil {
		p.log.record("init:" + p.meta.ID)
	}
	if p.initErr != nil {
		return p.initErr
	}
	if p.onInit != nil {
		return p.onInit(ctx, host)
	}
	return nil
}

func (p *testPlugin) Start(ctx context.Context) error {
	if p.log != nil {
		p.log.record("start:" + p.meta.ID)
	}
	return nil
}

func (p *testPlugin) Stop(ctx context.Context) error {
	if p.log != nil {
		p.log.record("stop:" + p.meta.ID)
	}
	return nil
}

func newTestPlugin(id string, log *callLog, deps ...string) *testPlugin {
	return &testPlugin{
		meta: sdk.Metadata{ID: id, Name: id, Version: "1.0.0", Dependencies: deps},
		log:  log,
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(nil, nil, nil, hclog.NewNullLogger())
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Register(newTestPlugin("alpha", nil)))
	err := m.RegisterSource(newTestPlugin("alpha", nil), SourceDisk)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicatePlugin)

	// The original registration survives untouched.
	info, ok := m.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, SourceStatic, info.Source)
}

func TestRegisterRejectsEmptyID(t *testing.T) {
	m := newTestManager(t)
	err := m.Register(&testPlugin{meta: sdk.Metadata{Name: "nameless"}})
	require.Error(t, err)
}

func TestInitAllRunsDependenciesFirst(t *testing.T) {
	m := newTestManager(t)
	log := &callLog{}

	// Registered in reverse dependency order on purpose.
	require.NoError(t, m.Register(newTestPlugin("c", log, "b")))
	require.NoError(t, m.Register(newTestPlugin("b", log, "a")))
	require.NoError(t, m.Register(newTestPlugin("a", log)))

	require.NoError(t, m.InitAll(context.Background()))
	assert.Equal(t, []string{"init:a", "init:b", "init:c"}, log.entries())
}

func TestInitAllBreaksTiesByRegistrationOrder(t *testing.T) {
	m := newTestManager(t)
	log := &callLog{}

	require.NoError(t, m.Register(newTestPlugin("second", log)))
	require.NoError(t, m.Register(newTestPlugin("first", log)))
	require.NoError(t, m.Register(newTestPlugin("third", log)))

	require.NoError(t, m.InitAll(context.Background()))
	assert.Equal(t, []string{"init:second", "init:first", "init:third"}, log.entries())
}

func TestInitAllFailsWholeManagerOnMissingDependency(t *testing.T) {
	m := newTestManager(t)
	log := &callLog{}

	require.NoError(t, m.Register(newTestPlugin("a", log)))
	require.NoError(t, m.Register(newTestPlugin("b", log, "ghost")))

	err := m.InitAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingDep)

	// Nothing initializes; a broken graph is fatal before any Init runs.
	assert.Empty(t, log.entries())
}

func TestInitAllFailsWholeManagerOnCycle(t *testing.T) {
	m := newTestManager(t)
	log := &callLog{}

	require.NoError(t, m.Register(newTestPlugin("a", log, "b")))
	require.NoError(t, m.Register(newTestPlugin("b", log, "a")))

	err := m.InitAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyCycle)
	assert.Empty(t, log.entries())
}

func TestInitFailureIsolatedToDependents(t *testing.T) {
	m := newTestManager(t)
	log := &callLog{}

	broken := newTestPlugin("broken", log)
	broken.initErr = errors.New("boom")

	require.NoError(t, m.Register(broken))
	require.NoError(t, m.Register(newTestPlugin("dependent", log, "broken")))
	require.NoError(t, m.Register(newTestPlugin("bystander", log)))

	require.NoError(t, m.InitAll(context.Background()))

	brokenInfo, _ := m.Get("broken")
	assert.Equal(t, "failed", brokenInfo.State)
	assert.Contains(t, brokenInfo.Error, "boom")

	depInfo, _ := m.Get("dependent")
	assert.Equal(t, "failed", depInfo.State)
	assert.Contains(t, depInfo.Error, "broken")

	byInfo, _ := m.Get("bystander")
	assert.Equal(t, "initialized", byInfo.State)

	// Dependent's Init never ran.
	assert.NotContains(t, log.entries(), "init:dependent")

	m.StartAll(context.Background())
	assert.Contains(t, log.entries(), "start:bystander")
	assert.NotContains(t, log.entries(), "start:broken")
	assert.NotContains(t, log.entries(), "start:dependent")
}

func TestInitPanicTreatedAsFailure(t *testing.T) {
	m := newTestManager(t)

	p := newTestPlugin("panics", nil)
	p.onInit = func(ctx context.Context, host sdk.Host) error {
		panic("unexpected state")
	}
	require.NoError(t, m.Register(p))

	require.NoError(t, m.InitAll(context.Background()))
	info, _ := m.Get("panics")
	assert.Equal(t, "failed", info.State)
	assert.Contains(t, info.Error, "panic")
}

func TestStopAllReversesStartOrder(t *testing.T) {
	m := newTestManager(t)
	log := &callLog{}

	require.NoError(t, m.Register(newTestPlugin("a", log)))
	require.NoError(t, m.Register(newTestPlugin("b", log, "a")))

	ctx := context.Background()
	require.NoError(t, m.InitAll(ctx))
	m.StartAll(ctx)
	m.StopAll(ctx)

	assert.Equal(t, []string{
		"init:a", "init:b",
		"start:a", "start:b",
		"stop:b", "stop:a",
	}, log.entries())

	for _, id := range []string{"a", "b"} {
		info, _ := m.Get(id)
		assert.Equal(t, "stopped", info.State)
	}
}

func TestServiceCallAcrossDependencyEdge(t *testing.T) {
	m := newTestManager(t)

	provider := newTestPlugin("provider", nil)
	provider.onInit = func(ctx context.Context, host sdk.Host) error {
		return host.ProvideService("greet", func(ctx context.Context, req map[string]any) (map[string]any, error) {
			name, _ := req["name"].(string)
			return map[string]any{"greeting": fmt.Sprintf("hello %s", name)}, nil
		})
	}

	var got string
	consumer := newTestPlugin("consumer", nil, "provider")
	consumer.onInit = func(ctx context.Context, host sdk.Host) error {
		result, err := host.CallService(ctx, "provider", "greet", map[string]any{"name": "world"})
		if err != nil {
			return err
		}
		got, _ = result["greeting"].(string)
		return nil
	}

	// Consumer first: ordering must still put provider's Init ahead of it.
	require.NoError(t, m.Register(consumer))
	require.NoError(t, m.Register(provider))

	require.NoError(t, m.InitAll(context.Background()))
	assert.Equal(t, "hello world", got)

	info, _ := m.Get("consumer")
	assert.Equal(t, "initialized", info.State)
}

func TestAddDynamicRequiresHealthyDependencies(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	err := m.AddDynamic(ctx, newTestPlugin("late", nil, "missing"), SourceDisk)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingDep)

	require.NoError(t, m.Register(newTestPlugin("base", nil)))
	require.NoError(t, m.InitAll(ctx))
	m.StartAll(ctx)

	require.NoError(t, m.AddDynamic(ctx, newTestPlugin("late", nil, "base"), SourceDisk))
	info, ok := m.Get("late")
	require.True(t, ok)
	assert.Equal(t, "started", info.State)
}

func TestInitAllOrdersTiesAcrossReleaseParents(t *testing.T) {
	m := newTestManager(t)
	log := &callLog{}

	// x and y sit at the same depth but are released by different parents;
	// the tie still breaks by registration order, so x initializes first.
	require.NoError(t, m.Register(newTestPlugin("a", log)))
	require.NoError(t, m.Register(newTestPlugin("b", log)))
	require.NoError(t, m.Register(newTestPlugin("x", log, "b")))
	require.NoError(t, m.Register(newTestPlugin("y", log, "a")))

	require.NoError(t, m.InitAll(context.Background()))
	assert.Equal(t, []string{"init:a", "init:b", "init:x", "init:y"}, log.entries())
}

func TestConcurrentDynamicLoadAndList(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Register(newTestPlugin("base", nil)))
	require.NoError(t, m.InitAll(ctx))
	m.StartAll(ctx)

	// The admin API polls plugin state while artifacts are hot-loaded.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				for _, info := range m.List() {
					_ = info.State
				}
				if info, ok := m.Get("base"); ok {
					_ = info.State
				}
			}
		}
	}()

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("dyn-%02d", i)
		require.NoError(t, m.AddDynamic(ctx, newTestPlugin(id, nil, "base"), SourceDisk))
	}

	close(stop)
	wg.Wait()

	infos := m.List()
	require.Len(t, infos, 51)
	for _, info := range infos[1:] {
		assert.Equal(t, "started", info.State, "plugin %s", info.ID)
	}
}

func TestAddDynamicEmitsDiscoveryEvent(t *testing.T) {
	bus := events.NewBus(hclog.NewNullLogger(), nil)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		bus.Stop(ctx)
	})

	m := NewManager(nil, bus, nil, hclog.NewNullLogger())
	got := make(chan events.Event, 1)
	bus.Subscribe(events.EventPluginDiscovered, func(e events.Event) {
		select {
		case got <- e:
		default:
		}
	})

	require.NoError(t, m.AddDynamic(context.Background(), newTestPlugin("dropped", nil), SourceDisk))

	select {
	case e := <-got:
		assert.Equal(t, "dropped", e.Payload["plugin_id"])
		assert.Equal(t, SourceDisk, e.Payload["source"])
	case <-time.After(2 * time.Second):
		t.Fatal("discovery event never published")
	}
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	m := newTestManager(t)

	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, m.Register(newTestPlugin(id, nil)))
	}

	infos := m.List()
	require.Len(t, infos, 3)
	assert.Equal(t, "zeta", infos[0].ID)
	assert.Equal(t, "alpha", infos[1].ID)
	assert.Equal(t, "mid", infos[2].ID)
}
