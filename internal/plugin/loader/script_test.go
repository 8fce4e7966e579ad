package loader

import (
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/castbot/castbot/sdk"
)

// fakeHost records the events a script emits.
type fakeHost struct {
	emitted []string
}

func (h *fakeHost) Migrate(statements ...string) error                 { return nil }
func (h *fakeHost) ProvideService(op string, fn sdk.ServiceFunc) error { return nil }
func (h *fakeHost) RegisterRouter(router *sdk.Router)                  {}
func (h *fakeHost) RegisterCommand(cmd sdk.Command) error              { return nil }
func (h *fakeHost) Subscribe(event string, fn sdk.EventFunc)           {}
func (h *fakeHost) DB() *gorm.DB                                       { return nil }
func (h *fakeHost) Logger() hclog.Logger                               { return hclog.NewNullLogger() }

func (h *fakeHost) Emit(event string, payload map[string]any) {
	h.emitted = append(h.emitted, event)
}

func (h *fakeHost) CallService(ctx context.Context, pluginID, op string, req map[string]any) (map[string]any, error) {
	return nil, nil
}

func testMeta(id string) sdk.Metadata {
	return sdk.Metadata{ID: id, Name: id, Version: "1.0.0"}
}

func TestScriptLifecycleFunctions(t *testing.T) {
	source := []byte(`
state = "loaded"

function init()
	state = "initialized"
	castbot.emit("test.init")
end

function start()
	castbot.emit("test.start")
end

function stop()
	castbot.emit("test.stop")
end
`)
	host := &fakeHost{}
	p := newScriptPlugin(testMeta("lifecycle"), source, hclog.NewNullLogger())

	ctx := context.Background()
	require.NoError(t, p.Init(ctx, host))
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Stop(ctx))

	assert.Equal(t, []string{"test.init", "test.start", "test.stop"}, host.emitted)
}

func TestScriptLifecycleFunctionsAreOptional(t *testing.T) {
	p := newScriptPlugin(testMeta("bare"), []byte(`x = 42`), hclog.NewNullLogger())

	ctx := context.Background()
	require.NoError(t, p.Init(ctx, &fakeHost{}))
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Stop(ctx))
}

func TestScriptSyntaxErrorFailsInit(t *testing.T) {
	p := newScriptPlugin(testMeta("broken"), []byte(`function init( end`), hclog.NewNullLogger())
	err := p.Init(context.Background(), &fakeHost{})
	require.Error(t, err)
}

func TestScriptSandboxBlocksFilesystemAccess(t *testing.T) {
	// os and io are removed before the chunk runs; touching them is a
	// runtime error that fails Init instead of reaching the filesystem.
	p := newScriptPlugin(testMeta("escape"), []byte(`io.open("/etc/passwd")`), hclog.NewNullLogger())
	err := p.Init(context.Background(), &fakeHost{})
	require.Error(t, err)

	p = newScriptPlugin(testMeta("escape2"), []byte(`os.execute("true")`), hclog.NewNullLogger())
	err = p.Init(context.Background(), &fakeHost{})
	require.Error(t, err)
}

type capturedEmit struct {
	event   string
	payload map[string]any
}

type payloadHost struct {
	fakeHost
	got []capturedEmit
}

func (h *payloadHost) Emit(event string, payload map[string]any) {
	h.got = append(h.got, capturedEmit{event: event, payload: payload})
}

func TestScriptEmitPayloadConversion(t *testing.T) {
	host := &payloadHost{}

	source := []byte(`
castbot.emit("metrics.sample", {count = 3, label = "chat", live = true})
`)
	p := newScriptPlugin(testMeta("payload"), source, hclog.NewNullLogger())
	require.NoError(t, p.Init(context.Background(), host))

	require.Len(t, host.got, 1)
	assert.Equal(t, "metrics.sample", host.got[0].event)
	assert.Equal(t, float64(3), host.got[0].payload["count"])
	assert.Equal(t, "chat", host.got[0].payload["label"])
	assert.Equal(t, true, host.got[0].payload["live"])
}
