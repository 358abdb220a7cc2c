package vm_test

import (
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"layoutcore/internal/layout"
	"layoutcore/internal/vm"
)

func TestLoggerRecordsTableCreation(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	vm.SetLogger(zap.New(core))
	t.Cleanup(func() { vm.SetLogger(nil) })

	f := newShapeFixture(t)
	cx := vm.NewEvalContext(layout.X86_64LinuxGNU(), f.in)
	if _, err := cx.GetVtable(f.circle, f.shape); err != nil {
		t.Fatalf("GetVtable failed: %v", err)
	}
	entries := logs.FilterMessage("vtable created").All()
	if len(entries) != 1 {
		t.Fatalf("expected one creation record, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["for"] != "Circle as dyn Shape" || fields["methods"] != int64(4) {
		t.Fatalf("unexpected fields %v", fields)
	}
	if fields["ctx"] != cx.ID.String() {
		t.Fatalf("expected ctx %s, got %v", cx.ID, fields["ctx"])
	}
}

func TestSetLoggerConcurrentWithContexts(t *testing.T) {
	t.Cleanup(func() { vm.SetLogger(nil) })
	fixtures := make([]*shapeFixture, 8)
	for i := range fixtures {
		fixtures[i] = newShapeFixture(t)
	}
	var wg sync.WaitGroup
	for _, f := range fixtures {
		wg.Add(2)
		go func() {
			defer wg.Done()
			vm.SetLogger(zap.NewNop())
		}()
		go func() {
			defer wg.Done()
			cx := vm.NewEvalContext(layout.ARMv7HF(), f.in)
			if _, err := cx.GetVtable(f.circle, f.shape); err != nil {
				t.Errorf("GetVtable failed: %v", err)
			}
		}()
	}
	wg.Wait()
	vm.SetLogger(nil)
	if vm.Logger() == nil {
		t.Fatal("expected a no-op logger after SetLogger(nil)")
	}
}
