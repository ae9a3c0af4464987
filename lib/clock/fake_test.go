// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

func testStart() time.Time {
	return time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	c := Fake(testStart())
	ch := c.After(3 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	c.Advance(3 * time.Second)
	select {
	case fired := <-ch:
		if !fired.Equal(testStart().Add(3 * time.Second)) {
			t.Errorf("fired at %v, want %v", fired, testStart().Add(3*time.Second))
		}
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeAfterImmediateForNonPositive(t *testing.T) {
	c := Fake(testStart())
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	c := Fake(testStart())
	var calls atomic.Int32

	timer := c.AfterFunc(5*time.Second, func() { calls.Add(1) })
	if !timer.Stop() {
		t.Fatal("Stop on a pending timer should return true")
	}
	c.Advance(10 * time.Second)

	if got := calls.Load(); got != 0 {
		t.Errorf("stopped AfterFunc ran %d times", got)
	}
	if timer.Stop() {
		t.Error("second Stop should return false")
	}
}

func TestFakeTickerFiresPerInterval(t *testing.T) {
	c := Fake(testStart())
	ticker := c.NewTicker(time.Minute)
	defer ticker.Stop()

	ticks := 0
	for i := 0; i < 3; i++ {
		c.Advance(time.Minute)
		select {
		case <-ticker.C:
			ticks++
		default:
		}
	}
	if ticks != 3 {
		t.Errorf("got %d ticks, want 3", ticks)
	}
}

func TestFakeTickerStopSuppressesTicks(t *testing.T) {
	c := Fake(testStart())
	ticker := c.NewTicker(time.Second)
	ticker.Stop()
	c.Advance(5 * time.Second)

	select {
	case <-ticker.C:
		t.Fatal("stopped ticker delivered a tick")
	default:
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	c := Fake(testStart())
	done := make(chan struct{})

	go func() {
		c.Sleep(2 * time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(2 * time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakeAdvanceFiresInDeadlineOrder(t *testing.T) {
	c := Fake(testStart())
	var order []int

	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })

	c.Advance(5 * time.Second)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("callbacks fired in order %v, want [1 2 3]", order)
	}
}
