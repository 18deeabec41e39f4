package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAdd_RejectsNonPositiveInterval(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = s.Shutdown() }()

	if err := s.Add(Job{Name: "bad", Interval: 0, Run: func(context.Context) error { return nil }}); err == nil {
		t.Error("Add() error = nil, want error for zero interval")
	}
}

func TestScheduler_RunsJobs(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var ok, failed int32
	if err := s.Add(Job{Name: "tick", Interval: 20 * time.Millisecond, Run: func(context.Context) error {
		atomic.AddInt32(&ok, 1)
		return nil
	}}); err != nil {
		t.Fatalf("Add(tick) error = %v", err)
	}
	if err := s.Add(Job{Name: "fail", Interval: time.Hour, Immediate: true, Run: func(context.Context) error {
		atomic.AddInt32(&failed, 1)
		return errors.New("boom")
	}}); err != nil {
		t.Fatalf("Add(fail) error = %v", err)
	}
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for (atomic.LoadInt32(&ok) < 2 || atomic.LoadInt32(&failed) < 1) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if n := atomic.LoadInt32(&ok); n < 2 {
		t.Errorf("tick runs = %d, want >= 2", n)
	}
	if n := atomic.LoadInt32(&failed); n != 1 {
		t.Errorf("immediate job runs = %d, want 1", n)
	}
}
