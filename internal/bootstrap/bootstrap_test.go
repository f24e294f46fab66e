package bootstrap

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/formly/internal/config"
	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/forms"
	"github.com/kirillkom/formly/internal/core/usecase"
	"github.com/kirillkom/formly/internal/infrastructure/resilience"
	"github.com/kirillkom/formly/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/formly/internal/observability/metrics"
)

type llmStub struct{}

func (llmStub) CompleteJSON(context.Context, string) (string, error) { return "{}", nil }

func (llmStub) Converse(context.Context, []domain.ChatMessage, []domain.ToolSpec) (domain.ChatMessage, error) {
	return domain.ChatMessage{}, nil
}

func (llmStub) GenerateBrief(context.Context, *domain.Engagement, []*domain.Document) (string, error) {
	return "", nil
}

func TestNewClassifierSelectsMode(t *testing.T) {
	registry := forms.Default()
	if _, ok := newClassifier(config.Config{ClassifierMode: "graded"}, llmStub{}, registry, nil).(*usecase.ClassifyUseCase); !ok {
		t.Fatalf("graded mode should build the retry loop classifier")
	}
	if _, ok := newClassifier(config.Config{ClassifierMode: "Agentic"}, llmStub{}, registry, nil).(*usecase.AgenticClassifier); !ok {
		t.Fatalf("agentic mode should build the tool-use classifier")
	}
}

func TestNewStorageBackends(t *testing.T) {
	store, err := newStorage(context.Background(), config.Config{StorageBackend: "localfs", StoragePath: t.TempDir()})
	if err != nil {
		t.Fatalf("newStorage(localfs) error = %v", err)
	}
	if _, ok := store.(*localfs.Storage); !ok {
		t.Fatalf("expected local storage, got %T", store)
	}
	if _, err := newStorage(context.Background(), config.Config{StorageBackend: "s3"}); err == nil || !strings.Contains(err.Error(), "s3") {
		t.Fatalf("unknown backend should fail, got %v", err)
	}
}

func TestNewLLMProviders(t *testing.T) {
	if _, err := newLLM(context.Background(), config.Config{LLMProvider: "ollama", OllamaURL: "http://localhost:11434"}, resilience.NewExecutor(resilience.DefaultConfig())); err != nil {
		t.Fatalf("newLLM(ollama) error = %v", err)
	}
	if _, err := newLLM(context.Background(), config.Config{LLMProvider: "gemini"}, resilience.NewExecutor(resilience.DefaultConfig())); err == nil {
		t.Fatalf("gemini without an api key should fail")
	}
	if _, err := newLLM(context.Background(), config.Config{LLMProvider: "openai"}, resilience.NewExecutor(resilience.DefaultConfig())); err == nil {
		t.Fatalf("unknown provider should fail")
	}
}

func TestNewLockerMemory(t *testing.T) {
	app := &App{Config: config.Config{LockBackend: "memory"}}
	locker, err := app.newLocker(context.Background())
	if err != nil || locker == nil {
		t.Fatalf("newLocker(memory) = %v, %v", locker, err)
	}
	if _, err := (&App{Config: config.Config{LockBackend: "zookeeper"}}).newLocker(context.Background()); err == nil {
		t.Fatalf("unknown lock backend should fail")
	}
}

func TestNewExecutorReportsToWorkerMetrics(t *testing.T) {
	app := &App{WorkerMetrics: metrics.NewWorkerMetrics("worker")}
	exec := app.newExecutor(resilience.DefaultConfig())
	if err := exec.Execute(context.Background(), "ocr.extract", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	rec := httptest.NewRecorder()
	app.WorkerMetrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	want := `formly_external_calls_total{operation="ocr.extract",outcome="ok",service="worker"} 1`
	if !strings.Contains(string(body), want) {
		t.Fatalf("missing %s in:\n%s", want, body)
	}

	bare := (&App{}).newExecutor(resilience.DefaultConfig())
	if err := bare.Execute(context.Background(), "ocr.extract", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("Execute() without metrics error = %v", err)
	}
}
