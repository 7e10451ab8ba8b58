package userworker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimbusload/swarmworker/internal/stats"
	"github.com/nimbusload/swarmworker/internal/task"
)

func TestWorkerExitsPromptlyOnStop(t *testing.T) {
	var calls atomic.Int64
	sel := task.NewSelector([]task.Task{
		{Weight: 1, Name: "noop", Fn: func() error {
			calls.Add(1)
			return nil
		}},
	}, 1)

	agg := stats.New(nil)
	w := New(1, nil, sel, agg, nil)

	go w.Run()

	time.Sleep(5 * time.Millisecond)
	w.Stop()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not exit within a bounded grace period after Stop")
	}
	if calls.Load() == 0 {
		t.Fatal("expected at least one task invocation before stop took effect")
	}
}

func TestWorkerReportsErrorAsUnknownFailure(t *testing.T) {
	sel := task.NewSelector([]task.Task{
		{Weight: 1, Name: "broken", Fn: func() error { return errors.New("boom") }},
	}, 1)

	agg := stats.New(nil)
	agg.SetReportInterval(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)

	w := New(1, nil, sel, agg, nil)

	go w.Run()
	time.Sleep(10 * time.Millisecond)
	w.Stop()
	<-w.Done()

	deadline := time.After(2 * time.Second)
wait:
	for {
		select {
		case snap := <-agg.Snapshots():
			for _, e := range snap.Errors {
				if e.Method == "unknown" && e.Name == "broken" && e.ErrorText == "boom" {
					break wait
				}
			}
		case <-deadline:
			t.Fatal("no snapshot carried an \"unknown\" failure for task \"broken\" with text \"boom\"")
		}
	}

	agg.RequestClear()
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	sel := task.NewSelector([]task.Task{
		{Weight: 1, Name: "panicky", Fn: func() error { panic("oh no") }},
	}, 1)

	agg := stats.New(nil)
	w := New(1, nil, sel, agg, nil)

	go w.Run()
	time.Sleep(10 * time.Millisecond)
	w.Stop()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker loop should survive a panicking task and still exit on Stop")
	}
}
