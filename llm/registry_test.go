package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubProvider is a controllable Provider for registry and refresher
// tests. It reuses modelState so SetModel and catalog behavior match
// the real providers.
type stubProvider struct {
	modelState
	name    string
	hasKey  bool
	vision  bool
	initErr error
	sendErr error
	text    string
	fetch   func(ctx context.Context) ([]ModelInfo, error)
}

func newStubProvider(name string, hasKey bool) *stubProvider {
	p := &stubProvider{name: name, hasKey: hasKey}
	p.setCatalog([]ModelInfo{{ID: "stub-1", ContextLength: 8192, SupportsToolCalls: true}})
	p.setCurrent(ModelInfo{ID: "stub-1", ContextLength: 8192, SupportsToolCalls: true})
	return p
}

func (p *stubProvider) Initialize(ctx context.Context) error { return p.initErr }
func (p *stubProvider) Name() string                         { return p.name }
func (p *stubProvider) HasValidAPIKey() bool                 { return p.hasKey }
func (p *stubProvider) SupportsStreaming() bool              { return true }
func (p *stubProvider) SupportsToolCalls() bool              { return p.CurrentModel().SupportsToolCalls }
func (p *stubProvider) SupportsVision() bool                 { return p.vision }

func (p *stubProvider) Send(ctx context.Context, messages []ChatMessage) (Response, error) {
	if p.sendErr != nil {
		return Response{}, p.sendErr
	}
	return Response{
		Provider: p.name,
		Model:    p.CurrentModel().ID,
		Message:  AssistantMessage(p.text),
	}, nil
}

func (p *stubProvider) SendStreaming(ctx context.Context, messages []ChatMessage, chunks chan<- string) (Response, error) {
	if p.sendErr != nil {
		return Response{}, p.sendErr
	}
	if p.text != "" {
		select {
		case chunks <- p.text:
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
	return Response{
		Provider: p.name,
		Model:    p.CurrentModel().ID,
		Message:  AssistantMessage(p.text),
	}, nil
}

func (p *stubProvider) SendWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (Response, error) {
	return p.Send(ctx, messages)
}

func (p *stubProvider) SendWithToolsStreaming(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, chunks chan<- string) (Response, error) {
	return p.SendStreaming(ctx, messages, chunks)
}

func (p *stubProvider) SendWithImage(ctx context.Context, message string, image []byte) (Response, error) {
	return p.Send(ctx, nil)
}

func (p *stubProvider) FetchAvailableModels(ctx context.Context) ([]ModelInfo, error) {
	if p.fetch == nil {
		return p.AvailableModels(), nil
	}
	models, err := p.fetch(ctx)
	if err != nil {
		return nil, err
	}
	p.setCatalog(models)
	return models, nil
}

var _ Provider = (*stubProvider)(nil)

func TestRegistrySelectsCredentialedProvider(t *testing.T) {
	a := newStubProvider("a", false)
	b := newStubProvider("b", true)
	r := NewRegistry(a, b)
	r.Initialize(context.Background())

	active, err := r.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active.Name() != "b" {
		t.Errorf("active = %q, want b", active.Name())
	}
}

func TestRegistryInitializeReportsErrors(t *testing.T) {
	a := newStubProvider("a", true)
	a.initErr = errors.New("boom")
	b := newStubProvider("b", true)
	r := NewRegistry(a, b)

	errs := r.Initialize(context.Background())
	if errs["a"] == nil {
		t.Error("Initialize did not report a's error")
	}
	if _, ok := errs["b"]; ok {
		t.Error("Initialize reported an error for b")
	}

	// a failed initialization, so b is selected
	active, _ := r.Active()
	if active.Name() != "b" {
		t.Errorf("active = %q, want b", active.Name())
	}
}

func TestRegistryEmptyReturnsErrNoProvider(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Active(); !errors.Is(err, ErrNoProvider) {
		t.Errorf("Active on empty registry = %v, want ErrNoProvider", err)
	}
}

func TestRegistryMarkFailedReselects(t *testing.T) {
	a := newStubProvider("a", true)
	b := newStubProvider("b", true)
	r := NewRegistry(a, b)
	r.Initialize(context.Background())

	active, _ := r.Active()
	if active.Name() != "a" {
		t.Fatalf("active = %q, want a", active.Name())
	}

	r.MarkFailed("a")
	active, _ = r.Active()
	if active.Name() != "b" {
		t.Errorf("after failure active = %q, want b", active.Name())
	}
}

func TestRegistryLastResortIsFirstConfigured(t *testing.T) {
	// Only one provider, credentialed but failed: it is still selected
	a := newStubProvider("a", true)
	r := NewRegistry(a)
	r.Initialize(context.Background())
	r.MarkFailed("a")

	active, err := r.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active.Name() != "a" {
		t.Errorf("active = %q, want a", active.Name())
	}
}

func TestRegistryBackoffExpires(t *testing.T) {
	a := newStubProvider("a", true)
	b := newStubProvider("b", true)
	r := NewRegistry(a, b)
	r.Initialize(context.Background())

	now := time.Now()
	r.now = func() time.Time { return now }

	r.MarkFailed("a")
	if got, _ := r.Active(); got.Name() != "b" {
		t.Fatalf("active = %q, want b", got.Name())
	}
	if fb := r.Fallback(); fb != nil {
		t.Errorf("fallback = %v, want nil while a is backed off", fb.Name())
	}

	// After the backoff window a is eligible again
	now = now.Add(DefaultFailureBackoff + time.Second)
	if fb := r.Fallback(); fb == nil || fb.Name() != "a" {
		t.Errorf("fallback after backoff expiry = %v, want a", fb)
	}
}

func TestRegistryFallbackSkipsActive(t *testing.T) {
	a := newStubProvider("a", true)
	b := newStubProvider("b", true)
	r := NewRegistry(a, b)
	r.Initialize(context.Background())

	fb := r.Fallback()
	if fb == nil || fb.Name() != "b" {
		t.Fatalf("fallback = %v, want b", fb)
	}
}

func TestRegistryVisionProvider(t *testing.T) {
	a := newStubProvider("a", true)
	b := newStubProvider("b", true)
	b.vision = true
	r := NewRegistry(a, b)
	r.Initialize(context.Background())

	// Active provider a has no vision; b serves the request
	p, err := r.VisionProvider()
	if err != nil {
		t.Fatalf("VisionProvider: %v", err)
	}
	if p.Name() != "b" {
		t.Errorf("vision provider = %q, want b", p.Name())
	}
}

func TestRegistryNoVisionProvider(t *testing.T) {
	a := newStubProvider("a", true)
	r := NewRegistry(a)
	r.Initialize(context.Background())

	if _, err := r.VisionProvider(); !errors.Is(err, ErrNoVisionProvider) {
		t.Errorf("VisionProvider = %v, want ErrNoVisionProvider", err)
	}
}

func TestRegistryVisionFallbackExcludes(t *testing.T) {
	a := newStubProvider("a", true)
	a.vision = true
	b := newStubProvider("b", true)
	b.vision = true
	r := NewRegistry(a, b)
	r.Initialize(context.Background())

	fb := r.VisionFallback("a")
	if fb == nil || fb.Name() != "b" {
		t.Fatalf("vision fallback = %v, want b", fb)
	}
	if fb := r.VisionFallback("b"); fb == nil || fb.Name() != "a" {
		t.Fatalf("vision fallback excluding b = %v, want a", fb)
	}
}

func TestRegistrySetActiveAndGet(t *testing.T) {
	a := newStubProvider("a", true)
	b := newStubProvider("b", true)
	r := NewRegistry(a, b)
	r.Initialize(context.Background())

	if !r.SetActive("b") {
		t.Fatal("SetActive(b) = false")
	}
	if active, _ := r.Active(); active.Name() != "b" {
		t.Errorf("active = %q, want b", active.Name())
	}
	if r.SetActive("nope") {
		t.Error("SetActive accepted unknown provider")
	}

	if _, ok := r.Get("a"); !ok {
		t.Error("Get(a) = false")
	}
	if _, ok := r.Get("nope"); ok {
		t.Error("Get(nope) = true")
	}
}
