package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/formly/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	if class := classifyNATSError(fmt.Errorf("publish: %w", nats.ErrConnectionClosed)); !class.Retryable {
		t.Fatalf("closed connection should be retryable")
	}
	if class := classifyNATSError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("cancellation is neither retryable nor a breaker failure: %+v", class)
	}
	if class := classifyNATSError(nats.ErrBadSubject); class.Retryable {
		t.Fatalf("bad subject is permanent")
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrNoServers); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("no servers should be temporary, got %v", err)
	}
	permanent := errors.New("invalid payload")
	if err := wrapTemporaryIfNeeded(permanent); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("permanent errors stay permanent")
	}
}
