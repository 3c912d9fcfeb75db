// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	fake := Fake(testEpoch)
	ch := fake.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("After() fired before Advance")
	default:
	}

	fake.Advance(5 * time.Second)
	select {
	case fired := <-ch:
		if !fired.Equal(testEpoch.Add(5 * time.Second)) {
			t.Errorf("fire time = %v, want %v", fired, testEpoch.Add(5*time.Second))
		}
	default:
		t.Fatal("After() did not fire after Advance")
	}
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	fake := Fake(testEpoch)
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeTickerReschedules(t *testing.T) {
	fake := Fake(testEpoch)
	ticker := fake.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		fake.Advance(time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d not delivered", i)
		}
	}

	ticker.Stop()
	fake.Advance(time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker delivered a tick")
	default:
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	fake := Fake(testEpoch)
	done := make(chan struct{})

	go func() {
		fake.Sleep(10 * time.Second)
		close(done)
	}()

	fake.WaitForTimers(1)
	if count := fake.PendingCount(); count != 1 {
		t.Errorf("PendingCount() = %d, want 1", count)
	}
	fake.Advance(10 * time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}
