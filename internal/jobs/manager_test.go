package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/models"
)

func newTestManager(t *testing.T) (*Manager, *memJobStorage) {
	t.Helper()
	storage := newMemJobStorage()
	return NewManager(storage, arbor.NewLogger()), storage
}

func TestManager_Lifecycle(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	job, err := manager.CreateJob(ctx, models.JobTypeUrlFetch, "", "bm_1", map[string]interface{}{
		models.MetaURL: "https://example.com",
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("Expected pending, got %s", job.Status)
	}
	if job.Progress != 0 {
		t.Errorf("Expected zero progress, got %d", job.Progress)
	}

	if err := manager.MarkInProgress(ctx, job.ID); err != nil {
		t.Fatalf("MarkInProgress failed: %v", err)
	}

	if err := manager.CompleteJob(ctx, job.ID, map[string]interface{}{models.MetaHTMLSize: 1234}); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}

	final, err := manager.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if final.Status != models.JobStatusCompleted {
		t.Errorf("Expected completed, got %s", final.Status)
	}
	if final.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", final.Progress)
	}
	if final.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}
	if got := final.GetMetaInt(models.MetaHTMLSize, 0); got != 1234 {
		t.Errorf("Expected html_size 1234, got %d", got)
	}
}

func TestManager_InvalidTransitions(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	t.Run("Complete from pending", func(t *testing.T) {
		job, _ := manager.CreateJob(ctx, models.JobTypeUrlFetch, "", "", nil)
		err := manager.CompleteJob(ctx, job.ID, nil)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("Claim a completed job", func(t *testing.T) {
		job, _ := manager.CreateJob(ctx, models.JobTypeUrlFetch, "", "", nil)
		manager.MarkInProgress(ctx, job.ID)
		manager.CompleteJob(ctx, job.ID, nil)

		err := manager.MarkInProgress(ctx, job.ID)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("Cancel a failed job", func(t *testing.T) {
		job, _ := manager.CreateJob(ctx, models.JobTypeUrlFetch, "", "", nil)
		manager.MarkInProgress(ctx, job.ID)
		manager.FailJob(ctx, job.ID, ErrorKindTimeout, "deadline exceeded")

		err := manager.CancelJob(ctx, job.ID)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestManager_UpdateProgress(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	job, _ := manager.CreateJob(ctx, models.JobTypeQaGeneration, "", "bm_1", nil)
	manager.MarkInProgress(ctx, job.ID)

	if err := manager.UpdateProgress(ctx, job.ID, 50, "generating pairs", nil); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	t.Run("Regression rejected", func(t *testing.T) {
		err := manager.UpdateProgress(ctx, job.ID, 25, "", nil)
		if !errors.Is(err, ErrProgressRegression) {
			t.Errorf("Expected ErrProgressRegression, got %v", err)
		}

		loaded, _ := manager.GetJob(ctx, job.ID)
		if loaded.Progress != 50 {
			t.Errorf("Progress should be unchanged at 50, got %d", loaded.Progress)
		}
	})

	t.Run("Equal progress allowed", func(t *testing.T) {
		if err := manager.UpdateProgress(ctx, job.ID, 50, "", nil); err != nil {
			t.Errorf("Equal progress should not error: %v", err)
		}
	})

	t.Run("Capped at 100", func(t *testing.T) {
		if err := manager.UpdateProgress(ctx, job.ID, 150, "", nil); err != nil {
			t.Fatalf("UpdateProgress failed: %v", err)
		}
		loaded, _ := manager.GetJob(ctx, job.ID)
		if loaded.Progress != 100 {
			t.Errorf("Expected progress capped at 100, got %d", loaded.Progress)
		}
	})
}

func TestManager_FailJob_RecordsErrorMetadata(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	job, _ := manager.CreateJob(ctx, models.JobTypeUrlFetch, "", "", nil)
	manager.MarkInProgress(ctx, job.ID)

	if err := manager.FailJob(ctx, job.ID, ErrorKindPayloadTooLarge, "body exceeds 10MB limit"); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}

	loaded, _ := manager.GetJob(ctx, job.ID)
	if loaded.Status != models.JobStatusFailed {
		t.Errorf("Expected failed, got %s", loaded.Status)
	}
	if got := loaded.GetMetaString(models.MetaErrorKind, ""); got != string(ErrorKindPayloadTooLarge) {
		t.Errorf("Expected PayloadTooLarge kind, got %s", got)
	}
	if got := loaded.GetMetaString(models.MetaErrorMessage, ""); got != "body exceeds 10MB limit" {
		t.Errorf("Unexpected error message: %s", got)
	}
}

func TestManager_RecordChildResult(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	parent, _ := manager.CreateJob(ctx, models.JobTypeBulkUrlImport, "", "", map[string]interface{}{
		models.MetaTotalURLs: 4,
	})
	manager.MarkInProgress(ctx, parent.ID)

	manager.RecordChildResult(ctx, parent.ID, true)
	manager.RecordChildResult(ctx, parent.ID, false)
	manager.RecordChildResult(ctx, parent.ID, true)

	loaded, _ := manager.GetJob(ctx, parent.ID)
	if got := loaded.GetMetaInt(models.MetaSuccessCount, 0); got != 2 {
		t.Errorf("Expected 2 successes, got %d", got)
	}
	if got := loaded.GetMetaInt(models.MetaFailureCount, 0); got != 1 {
		t.Errorf("Expected 1 failure, got %d", got)
	}
	if loaded.Progress != 75 {
		t.Errorf("Expected progress 75 after 3 of 4 children, got %d", loaded.Progress)
	}

	manager.RecordChildResult(ctx, parent.ID, false)
	loaded, _ = manager.GetJob(ctx, parent.ID)
	if loaded.Progress != 100 {
		t.Errorf("Expected progress 100 after all children, got %d", loaded.Progress)
	}

	success := loaded.GetMetaInt(models.MetaSuccessCount, 0)
	failure := loaded.GetMetaInt(models.MetaFailureCount, 0)
	if success+failure != 4 {
		t.Errorf("Counters must sum to child count: %d + %d", success, failure)
	}
}

func TestManager_RecordChildResult_Concurrent(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	const children = 20
	parent, _ := manager.CreateJob(ctx, models.JobTypeBulkUrlImport, "", "", map[string]interface{}{
		models.MetaTotalURLs: children,
	})
	manager.MarkInProgress(ctx, parent.ID)

	done := make(chan struct{}, children)
	for i := 0; i < children; i++ {
		go func(success bool) {
			manager.RecordChildResult(ctx, parent.ID, success)
			done <- struct{}{}
		}(i%2 == 0)
	}
	for i := 0; i < children; i++ {
		<-done
	}

	loaded, _ := manager.GetJob(ctx, parent.ID)
	success := loaded.GetMetaInt(models.MetaSuccessCount, 0)
	failure := loaded.GetMetaInt(models.MetaFailureCount, 0)
	if success+failure != children {
		t.Errorf("Lost child results: %d + %d != %d", success, failure, children)
	}
	if loaded.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", loaded.Progress)
	}
}

func TestManager_RecordChildResult_MissingParent(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	// A deleted parent must not fail the child's settlement.
	if err := manager.RecordChildResult(ctx, "job_gone", true); err != nil {
		t.Errorf("Missing parent should be ignored, got %v", err)
	}
}
