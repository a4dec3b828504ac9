package core

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func (m *trackingModule) Start() error {
	if m.onStart != nil {
		m.onStart()
	}
	return m.startErr
}

func (m *trackingModule) Stop(_ context.Context) error {
	if m.onStop != nil {
		m.onStop()
	}
	return nil
}

func TestApp_StartStopOrder(t *testing.T) {
	t.Cleanup(resetRegistry)

	var events []string
	for _, id := range []ModuleID{"test.a", "test.b"} {
		name := string(id)
		RegisterModule(&trackingModule{
			id:      id,
			onStart: func() { events = append(events, "start "+name) },
			onStop:  func() { events = append(events, "stop "+name) },
		})
	}

	app := NewApp(NewAppContext(nil, "/data", "/ws"))
	if err := app.LoadModules([]string{"test.a", "test.b"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	app.Stop()

	want := []string{"start test.a", "start test.b", "stop test.b", "stop test.a"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestApp_StartFailureStopsStarted(t *testing.T) {
	t.Cleanup(resetRegistry)

	stopped := false
	RegisterModule(&trackingModule{id: "test.ok", onStop: func() { stopped = true }})
	RegisterModule(&trackingModule{id: "test.fail", startErr: errors.New("boom")})

	app := NewApp(NewAppContext(nil, "/data", "/ws"))
	if err := app.LoadModules([]string{"test.ok", "test.fail"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}
	if !stopped {
		t.Error("expected already-started module to be stopped")
	}
}

func TestApp_Module(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{id: "test.lookup"})
	app := NewApp(NewAppContext(nil, "/data", "/ws"))
	if err := app.LoadModules([]string{"test.lookup"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if _, ok := app.Module("test.lookup"); !ok {
		t.Error("expected loaded module to be found")
	}
	if _, ok := app.Module("test.other"); ok {
		t.Error("expected unknown module lookup to fail")
	}
}

type reloadingModule struct {
	trackingModule
	err     error
	reloads int
}

func (m *reloadingModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: m.id, New: func() Module { return m }}
}

func (m *reloadingModule) Reload(*AppContext) error {
	m.reloads++
	return m.err
}

func TestApp_ReloadModules(t *testing.T) {
	t.Cleanup(resetRegistry)

	good := &reloadingModule{trackingModule: trackingModule{id: "test.good"}}
	bad := &reloadingModule{trackingModule: trackingModule{id: "test.bad"}, err: errors.New("bad yaml")}
	RegisterModule(bad)
	RegisterModule(&trackingModule{id: "test.static"})
	RegisterModule(good)

	app := NewApp(NewAppContext(nil, "/data", "/ws"))
	if err := app.LoadModules([]string{"test.bad", "test.static", "test.good"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if got := app.ModuleIDs(); len(got) != 3 || got[0] != "test.bad" || got[2] != "test.good" {
		t.Errorf("ModuleIDs = %v", got)
	}

	reloaded, err := app.ReloadModules(NewAppContext(nil, "/data", "/ws"))
	if err == nil || !strings.Contains(err.Error(), "test.bad") {
		t.Errorf("err = %v, want failure naming test.bad", err)
	}
	if len(reloaded) != 1 || reloaded[0] != "test.good" {
		t.Errorf("reloaded = %v, want [test.good]", reloaded)
	}
	if good.reloads != 1 || bad.reloads != 1 {
		t.Errorf("reloads good=%d bad=%d", good.reloads, bad.reloads)
	}
}
