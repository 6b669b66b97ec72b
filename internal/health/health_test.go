package health

import (
	"context"
	"testing"
	"time"
)

func TestRegistry_AllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("a", func(ctx context.Context) Status {
		return Status{Name: "a", Healthy: true}
	})
	r.Register("b", func(ctx context.Context) Status {
		return Status{Name: "b", Healthy: true}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("Expected aggregate healthy")
	}
	if len(statuses) != 2 {
		t.Errorf("Expected 2 statuses, got %d", len(statuses))
	}
}

func TestRegistry_OneUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("db", func(ctx context.Context) Status {
		return Status{Name: "db", Healthy: false, Detail: "connection refused"}
	})
	r.Register("refdata", func(ctx context.Context) Status {
		return Status{Name: "refdata", Healthy: true}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Error("Expected aggregate unhealthy")
	}
	if statuses[0].Detail != "connection refused" {
		t.Errorf("Expected detail preserved, got %q", statuses[0].Detail)
	}
}

func TestRegistry_Empty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("Empty registry should report healthy")
	}
	if len(statuses) != 0 {
		t.Errorf("Expected no statuses, got %d", len(statuses))
	}
}

func TestRefdataChecker(t *testing.T) {
	t.Run("loaded and fresh", func(t *testing.T) {
		check := Refdata("refdata", func() time.Time { return time.Now() }, time.Hour)
		st := check(context.Background())
		if !st.Healthy {
			t.Errorf("Expected healthy, got %+v", st)
		}
	})

	t.Run("never loaded", func(t *testing.T) {
		check := Refdata("refdata", func() time.Time { return time.Time{} }, time.Hour)
		st := check(context.Background())
		if st.Healthy {
			t.Error("Expected unhealthy when never loaded")
		}
	})

	t.Run("stale", func(t *testing.T) {
		check := Refdata("refdata", func() time.Time { return time.Now().Add(-2 * time.Hour) }, time.Hour)
		st := check(context.Background())
		if st.Healthy {
			t.Error("Expected unhealthy when stale")
		}
	})

	t.Run("zero max age disables staleness", func(t *testing.T) {
		check := Refdata("refdata", func() time.Time { return time.Now().Add(-48 * time.Hour) }, 0)
		st := check(context.Background())
		if !st.Healthy {
			t.Error("Expected healthy with staleness check disabled")
		}
	})
}
