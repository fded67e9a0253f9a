package jobstore

import (
	"errors"
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	store := New(time.Minute)

	req := Request{Identifier: "12345", AccessToken: "tok"}
	job := store.Create(req, "/models/checkpoints/foo.safetensors", StateResolving)

	if job.ID == "" {
		t.Fatal("expected non-empty job ID")
	}
	if job.State != StateResolving {
		t.Errorf("expected state %q, got %q", StateResolving, job.State)
	}
	if job.TotalBytes != -1 {
		t.Errorf("expected unknown total size -1, got %d", job.TotalBytes)
	}

	got, err := store.Get(job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Request.Identifier != "12345" {
		t.Errorf("expected request identifier 12345, got %q", got.Request.Identifier)
	}
	if got.DestinationPath != "/models/checkpoints/foo.safetensors" {
		t.Errorf("unexpected destination path %q", got.DestinationPath)
	}
}

func TestGetUnknownID(t *testing.T) {
	store := New(time.Minute)

	if _, err := store.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	store := New(time.Minute)

	job := store.Create(Request{}, "/models/x", StateResolving)

	snap, _ := store.Get(job.ID)
	snap.State = StateFailed
	snap.BytesTransferred = 999

	got, _ := store.Get(job.ID)
	if got.State != StateResolving || got.BytesTransferred != 0 {
		t.Error("mutating a snapshot leaked into the store")
	}
}

func TestStateTransitions(t *testing.T) {
	store := New(time.Minute)

	job := store.Create(Request{}, "/models/x", StateResolving)

	store.SetState(job.ID, StateTransferring)
	got, _ := store.Get(job.ID)
	if got.State != StateTransferring {
		t.Fatalf("expected %q, got %q", StateTransferring, got.State)
	}

	store.Complete(job.ID)
	got, _ = store.Get(job.ID)
	if got.State != StateCompleted {
		t.Fatalf("expected %q, got %q", StateCompleted, got.State)
	}
	if got.FinishedAt.IsZero() {
		t.Error("expected FinishedAt to be set on completion")
	}

	// Terminal states are final.
	store.SetState(job.ID, StateTransferring)
	store.Fail(job.ID, errors.New("late failure"))
	got, _ = store.Get(job.ID)
	if got.State != StateCompleted {
		t.Errorf("terminal state was overwritten: %q", got.State)
	}
	if got.Err != nil {
		t.Errorf("error recorded after terminal state: %v", got.Err)
	}
}

func TestFailRecordsCause(t *testing.T) {
	store := New(time.Minute)

	cause := errors.New("registry unreachable")
	job := store.Create(Request{}, "/models/x", StateResolving)
	store.Fail(job.ID, cause)

	got, _ := store.Get(job.ID)
	if got.State != StateFailed {
		t.Fatalf("expected %q, got %q", StateFailed, got.State)
	}
	if !errors.Is(got.Err, cause) {
		t.Errorf("expected cause %v, got %v", cause, got.Err)
	}
}

func TestProgressMonotonic(t *testing.T) {
	store := New(time.Minute)

	job := store.Create(Request{}, "/models/x", StateTransferring)

	store.SetProgress(job.ID, 100, 1000)
	store.SetProgress(job.ID, 500, 1000)
	store.SetProgress(job.ID, 50, 1000) // restarted transfer, must not regress

	got, _ := store.Get(job.ID)
	if got.BytesTransferred != 500 {
		t.Errorf("expected high-water mark 500, got %d", got.BytesTransferred)
	}
	if got.TotalBytes != 1000 {
		t.Errorf("expected total 1000, got %d", got.TotalBytes)
	}
}

func TestProgressIgnoredAfterTerminal(t *testing.T) {
	store := New(time.Minute)

	job := store.Create(Request{}, "/models/x", StateTransferring)
	store.SetProgress(job.ID, 100, 1000)
	store.Cancel(job.ID, nil)
	store.SetProgress(job.ID, 900, 1000)

	got, _ := store.Get(job.ID)
	if got.BytesTransferred != 100 {
		t.Errorf("progress updated after cancellation: %d", got.BytesTransferred)
	}
}

func TestSweepEvictsOnlyOldTerminalJobs(t *testing.T) {
	store := New(10 * time.Millisecond)

	done := store.Create(Request{}, "/models/a", StateResolving)
	store.Complete(done.ID)
	active := store.Create(Request{}, "/models/b", StateTransferring)

	time.Sleep(20 * time.Millisecond)

	// Any mutation triggers a sweep.
	third := store.Create(Request{}, "/models/c", StateResolving)
	store.Fail(third.ID, errors.New("boom"))

	if _, err := store.Get(done.ID); !errors.Is(err, ErrNotFound) {
		t.Error("expected old terminal job to be evicted")
	}
	if _, err := store.Get(active.ID); err != nil {
		t.Errorf("active job must never be evicted: %v", err)
	}
	if _, err := store.Get(third.ID); err != nil {
		t.Errorf("fresh terminal job evicted too early: %v", err)
	}
}

func TestCreateTerminalState(t *testing.T) {
	store := New(time.Minute)

	job := store.Create(Request{}, "/models/x", StateSkippedAlreadyExists)
	if job.FinishedAt.IsZero() {
		t.Error("expected FinishedAt set for a job created in a terminal state")
	}
	if !job.State.IsTerminal() {
		t.Error("expected terminal state")
	}
}
