package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	lua "github.com/yuin/gopher-lua"

	"github.com/castbot/castbot/sdk"
)

// scriptPlugin runs a Lua chunk inside an embedded interpreter. Untrusted or
// frequently-updated logic lives here: a broken script fails its own
// lifecycle calls instead of crashing the host.
//
// gopher-lua's LState is not goroutine-safe, so every interaction with it
// goes through the plugin's mutex. Lifecycle calls arrive sequentially from
// the manager; event callbacks can arrive from bus goroutines.
type scriptPlugin struct {
	meta   sdk.Metadata
	source []byte
	logger hclog.Logger

	mu   sync.Mutex
	L    *lua.LState
	host sdk.Host
}

func newScriptPlugin(meta sdk.Metadata, source []byte, logger hclog.Logger) *scriptPlugin {
	return &scriptPlugin{
		meta:   meta,
		source: source,
		logger: logger.Named("script." + meta.ID),
	}
}

func (p *scriptPlugin) Metadata() sdk.Metadata {
	return p.meta
}

func (p *scriptPlugin) Init(ctx context.Context, host sdk.Host) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.host = host
	p.L = lua.NewState()
	p.sandbox()
	p.installAPI()

	if err := p.L.DoString(string(p.source)); err != nil {
		p.L.Close()
		p.L = nil
		return fmt.Errorf("script %s failed to load: %w", p.meta.ID, err)
	}
	return p.callGlobal("init")
}

func (p *scriptPlugin) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callGlobal("start")
}

func (p *scriptPlugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.callGlobal("stop")
	if p.L != nil {
		p.L.Close()
		p.L = nil
	}
	return err
}

// sandbox removes globals that would let a script escape the interpreter.
func (p *scriptPlugin) sandbox() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		p.L.SetGlobal(name, lua.LNil)
	}
	p.L.SetGlobal("os", lua.LNil)
	p.L.SetGlobal("io", lua.LNil)
}

// installAPI exposes the host capabilities scripts are allowed to use as a
// `castbot` table.
func (p *scriptPlugin) installAPI() {
	api := p.L.NewTable()

	p.L.SetField(api, "log", p.L.NewFunction(func(L *lua.LState) int {
		p.logger.Info(L.CheckString(1))
		return 0
	}))

	p.L.SetField(api, "emit", p.L.NewFunction(func(L *lua.LState) int {
		event := L.CheckString(1)
		var payload map[string]any
		if L.GetTop() >= 2 {
			if tbl, ok := L.Get(2).(*lua.LTable); ok {
				payload = tableToMap(tbl)
			}
		}
		if p.host != nil {
			p.host.Emit(event, payload)
		}
		return 0
	}))

	p.L.SetGlobal("castbot", api)
}

// callGlobal invokes a top-level Lua function if the chunk defined it.
// Caller holds the mutex.
func (p *scriptPlugin) callGlobal(name string) error {
	if p.L == nil {
		return nil
	}
	fn := p.L.GetGlobal(name)
	if fn == lua.LNil {
		return nil
	}
	if err := p.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
		return fmt.Errorf("script %s: %s failed: %w", p.meta.ID, name, err)
	}
	return nil
}

func tableToMap(tbl *lua.LTable) map[string]any {
	out := make(map[string]any)
	tbl.ForEach(func(k, v lua.LValue) {
		key := k.String()
		switch val := v.(type) {
		case lua.LString:
			out[key] = string(val)
		case lua.LNumber:
			out[key] = float64(val)
		case lua.LBool:
			out[key] = bool(val)
		case *lua.LTable:
			out[key] = tableToMap(val)
		}
	})
	return out
}
