package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCheckerOverallStatusHealthyByDefault(t *testing.T) {
	c := NewChecker()
	if got := c.OverallStatus(); got != StatusHealthy {
		t.Errorf("OverallStatus() = %v, want %v", got, StatusHealthy)
	}
}

func TestCheckerCriticalFailureIsUnhealthy(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("source", true, func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy, Message: "device missing"}
	})

	c.Check(context.Background())
	if got := c.OverallStatus(); got != StatusUnhealthy {
		t.Errorf("OverallStatus() = %v, want %v", got, StatusUnhealthy)
	}
}

func TestCheckerNonCriticalFailureIsDegraded(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("mirror", false, func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy, Message: "sqlite mirror unreachable"}
	})

	c.Check(context.Background())
	if got := c.OverallStatus(); got != StatusDegraded {
		t.Errorf("OverallStatus() = %v, want %v", got, StatusDegraded)
	}
}

func TestCheckerTimeout(t *testing.T) {
	c := NewChecker()
	c.Register(&Component{
		Name:     "slow",
		Critical: true,
		Timeout:  10 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			return CheckResult{Status: StatusHealthy}
		},
	})

	results := c.Check(context.Background())
	if results["slow"].Status != StatusUnhealthy {
		t.Errorf("expected timeout to report unhealthy, got %v", results["slow"].Status)
	}
}

func TestFileExistsCheck(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "config.toml")
	os.WriteFile(present, []byte("x"), 0644)

	okResult := FileExistsCheck(present)(context.Background())
	if okResult.Status != StatusHealthy {
		t.Errorf("expected healthy for existing file, got %v", okResult.Status)
	}

	missing := FileExistsCheck(filepath.Join(dir, "missing.toml"))(context.Background())
	if missing.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy for missing file, got %v", missing.Status)
	}
}

func TestDiskSpaceCheck(t *testing.T) {
	dir := t.TempDir()
	result := DiskSpaceCheck(dir, 0)(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("expected healthy with zero threshold, got %v: %s", result.Status, result.Message)
	}

	unreasonable := DiskSpaceCheck(dir, 1<<62)(context.Background())
	if unreasonable.Status != StatusDegraded {
		t.Errorf("expected degraded with unreachable threshold, got %v", unreasonable.Status)
	}
}

func TestMemoryCheck(t *testing.T) {
	result := MemoryCheck(1 << 40)(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("expected healthy with generous threshold, got %v", result.Status)
	}

	tight := MemoryCheck(1)(context.Background())
	if tight.Status != StatusDegraded {
		t.Errorf("expected degraded with 1-byte threshold, got %v", tight.Status)
	}
}

func TestLastTickCheck(t *testing.T) {
	now := time.Now()
	fresh := LastTickCheck(func() time.Time { return now }, time.Hour)(context.Background())
	if fresh.Status != StatusHealthy {
		t.Errorf("expected healthy for fresh tick, got %v", fresh.Status)
	}

	stale := LastTickCheck(func() time.Time { return now.Add(-2 * time.Hour) }, time.Hour)(context.Background())
	if stale.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy for stale tick, got %v", stale.Status)
	}

	unset := LastTickCheck(func() time.Time { return time.Time{} }, time.Hour)(context.Background())
	if unset.Status != StatusUnknown {
		t.Errorf("expected unknown when no tick observed yet, got %v", unset.Status)
	}
}

func TestCheckerReadyFlag(t *testing.T) {
	c := NewChecker()
	if c.IsReady() {
		t.Error("new checker should not be ready")
	}
	c.SetReady(true)
	if !c.IsReady() {
		t.Error("SetReady(true) should make checker ready")
	}
}
