package health

import (
	"context"
	"sync"
	"testing"
)

func TestEmptyMonitorIsHealthy(t *testing.T) {
	m := NewMonitor()
	if got := m.Overall(); got != Healthy {
		t.Fatalf("Overall() on empty monitor = %q, want %q", got, Healthy)
	}
	if n := len(m.All()); n != 0 {
		t.Fatalf("All() returned %d checks, want 0", n)
	}
}

func TestOverallReturnsWorstStatus(t *testing.T) {
	m := NewMonitor()
	m.Update("a", Healthy, "")
	m.Update("b", Degraded, "slow")
	m.Update("c", Healthy, "")

	if got := m.Overall(); got != Degraded {
		t.Fatalf("Overall() = %q, want %q", got, Degraded)
	}

	m.Update("d", Unhealthy, "down")
	if got := m.Overall(); got != Unhealthy {
		t.Fatalf("Overall() = %q, want %q", got, Unhealthy)
	}
}

func TestAllKeepsRecordingOrder(t *testing.T) {
	m := NewMonitor()
	for _, name := range []string{"scheduler", "registry", "audit"} {
		m.Update(name, Healthy, "")
	}
	m.Update("scheduler", Degraded, "again")

	all := m.All()
	if len(all) != 3 {
		t.Fatalf("All() returned %d checks, want 3", len(all))
	}
	if all[0].Name != "scheduler" || all[0].Status != Degraded {
		t.Fatalf("first check = %+v, want updated scheduler", all[0])
	}
	if all[2].Name != "audit" {
		t.Fatalf("last check = %q, want audit", all[2].Name)
	}
}

func TestRunRecordsProbeResult(t *testing.T) {
	m := NewMonitor()
	c := m.Run(context.Background(), "registry", func(context.Context) (Status, string) {
		return Degraded, "read only"
	})
	if c.Status != Degraded || c.Message != "read only" {
		t.Fatalf("Run() = %+v", c)
	}
	got, ok := m.Get("registry")
	if !ok || got != c {
		t.Fatalf("Get() = %+v, %v; want %+v", got, ok, c)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	m := NewMonitor()
	c := m.Run(context.Background(), "boom", func(context.Context) (Status, string) {
		panic("bad probe")
	})
	if c.Status != Unhealthy {
		t.Fatalf("panicking probe status = %q, want %q", c.Status, Unhealthy)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Update("shared", Healthy, "")
			_ = m.Overall()
		}()
	}
	wg.Wait()
	if len(m.All()) != 1 {
		t.Fatalf("expected a single check, got %d", len(m.All()))
	}
}
