package fakeclock

import (
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestClock_SleepRecordsAndAdvances(t *testing.T) {
	c := New(epoch)

	c.Sleep(100 * time.Millisecond)
	c.Sleep(50 * time.Millisecond)

	slept := c.Slept()
	if len(slept) != 2 || slept[0] != 100*time.Millisecond || slept[1] != 50*time.Millisecond {
		t.Fatalf("Slept() = %v, want [100ms 50ms]", slept)
	}
	if got, want := c.Now(), epoch.Add(150*time.Millisecond); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}

func TestClock_After(t *testing.T) {
	c := New(epoch)
	ch := c.After(5 * time.Minute)

	select {
	case <-ch:
		t.Fatal("After() fired before Advance")
	default:
	}

	c.Advance(6 * time.Minute)

	select {
	case <-ch:
	default:
		t.Error("After() did not fire after Advance past deadline")
	}
}

func TestClock_AfterZeroFiresImmediately(t *testing.T) {
	c := New(epoch)
	select {
	case <-c.After(0):
	default:
		t.Error("After(0) should fire immediately")
	}
}

func TestTicker_StopSuppressesTicks(t *testing.T) {
	c := New(epoch)
	tk := c.NewTicker(time.Second).(*Ticker)

	tk.Tick()
	<-tk.C()

	tk.Stop()
	tk.Tick()
	select {
	case <-tk.C():
		t.Error("stopped ticker delivered a tick")
	default:
	}
}
