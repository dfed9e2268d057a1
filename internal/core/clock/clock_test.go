package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceFiresDueTimersInOrder(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	fake := NewFake(start)

	var fired []string
	var firedAt []time.Time
	fake.AfterFunc(2*time.Minute, func() {
		fired = append(fired, "second")
		firedAt = append(firedAt, fake.Now())
	})
	fake.AfterFunc(time.Minute, func() {
		fired = append(fired, "first")
		firedAt = append(firedAt, fake.Now())
	})
	fake.AfterFunc(10*time.Minute, func() { fired = append(fired, "late") })

	fake.Advance(5 * time.Minute)

	assert.Equal(t, []string{"first", "second"}, fired)
	assert.Equal(t, []time.Time{start.Add(time.Minute), start.Add(2 * time.Minute)}, firedAt)
	assert.Equal(t, start.Add(5*time.Minute), fake.Now())
	assert.Equal(t, 1, fake.Pending())
}

func TestFake_TimerNotFiredBeforeDeadline(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	fired := false
	fake.AfterFunc(30*time.Minute, func() { fired = true })

	fake.Advance(30*time.Minute - time.Second)
	assert.False(t, fired)

	fake.Advance(time.Second)
	assert.True(t, fired)
}

func TestFake_Stop(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	fired := false
	timer := fake.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	fake.Advance(time.Minute)
	assert.False(t, fired)
	assert.Equal(t, 0, fake.Pending())
}

func TestFake_CallbackCanScheduleFollowUp(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	count := 0
	var reschedule func()
	reschedule = func() {
		count++
		if count < 3 {
			fake.AfterFunc(time.Second, reschedule)
		}
	}
	fake.AfterFunc(time.Second, reschedule)

	fake.Advance(10 * time.Second)
	assert.Equal(t, 3, count)
}

func TestRealClock(t *testing.T) {
	c := New()
	done := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	assert.WithinDuration(t, time.Now(), c.Now(), time.Second)
}
