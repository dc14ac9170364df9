package status

import "testing"

func TestHub_Subscribe_ReceivesCurrent(t *testing.T) {
	h := NewHub()
	h.Publish(Status{Phase: PhaseIdle, Step: 1})

	ch, cancel := h.Subscribe()
	defer cancel()

	got := <-ch
	if got.Phase != PhaseIdle || got.Step != 1 {
		t.Errorf("first status = %+v, want idle step 1", got)
	}
}

func TestHub_SlowSubscriberGetsNewest(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	// Drain the initial status
	<-ch

	for i := 1; i <= 5; i++ {
		h.Publish(Status{Phase: PhaseRecording, Progress: float64(i) / 5})
	}

	got := <-ch
	if got.Progress != 1.0 {
		t.Errorf("Progress = %f, want newest 1.0", got.Progress)
	}

	select {
	case extra := <-ch:
		t.Errorf("unexpected extra update %+v", extra)
	default:
	}
}

func TestHub_Update(t *testing.T) {
	h := NewHub()
	h.Publish(Status{Phase: PhaseDetecting, Step: 2})

	h.Update(func(s *Status) { s.IsTouching = true })

	cur := h.Current()
	if !cur.IsTouching || cur.Phase != PhaseDetecting || cur.Step != 2 {
		t.Errorf("Current() = %+v", cur)
	}
	if cur.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	<-ch

	cancel()
	cancel() // second call must not panic

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic
	h.Publish(Status{Phase: PhaseIdle})
}

func TestStatus_Label(t *testing.T) {
	if (Status{IsTouching: true}).Label() != "touching" {
		t.Error("expected touching label")
	}
	if (Status{}).Label() != "not touching" {
		t.Error("expected not touching label")
	}
}
