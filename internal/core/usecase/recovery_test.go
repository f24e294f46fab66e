package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/lifecycle"
)

func TestRecoverResetsStuckDocuments(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	old := now.Add(-10 * time.Minute)
	recent := now.Add(-time.Minute)
	repo := newMemDocRepo(
		&domain.Document{ID: "a", ProcessingStatus: domain.StatusExtracting, ProcessingStartedAt: &old, RetryCount: 1},
		&domain.Document{ID: "b", ProcessingStatus: domain.StatusClassifying, ProcessingStartedAt: &old, RetryCount: lifecycle.MaxRetries},
		&domain.Document{ID: "c", ProcessingStatus: domain.StatusDownloading, ProcessingStartedAt: &recent, RetryCount: 1},
		&domain.Document{ID: "d", ProcessingStatus: domain.StatusClassified, RetryCount: 1},
	)
	queue := &queueFake{}
	uc := NewRecoveryUseCase(repo, queue, 0)

	stuck, err := uc.ListStuck(context.Background(), now)
	if err != nil || len(stuck) != 2 {
		t.Fatalf("ListStuck() = %v, %v", stuck, err)
	}

	report, err := uc.Recover(context.Background(), now)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	want := domain.RecoveryReport{Stuck: []string{"a", "b"}, Requeued: []string{"a"}, Exhausted: []string{"b"}, Failed: []string{}}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
	if got := repo.get("a"); got.ProcessingStatus != domain.StatusPending || got.ProcessingStartedAt != nil {
		t.Fatalf("stuck document should be pending again: %+v", got)
	}
	if got := repo.get("b"); got.ProcessingStatus != domain.StatusError || got.ProcessingError != lifecycle.ExhaustedMessage(lifecycle.MaxRetries) {
		t.Fatalf("exhausted document should fail permanently: %+v", got)
	}
	if diff := cmp.Diff([]string{"a"}, queue.published); diff != "" {
		t.Fatalf("published mismatch:\n%s", diff)
	}
}
