package llm

import (
	"context"
	"testing"
	"time"
)

func TestModelFamily(t *testing.T) {
	cases := []struct {
		id   string
		want string
	}{
		{"gpt-4-turbo", "gpt-turbo"},
		{"gpt-4-turbo-latest", "gpt-turbo"},
		{"gpt-4o", "gpt-4o"},
		{"claude-sonnet-4-20250514", "claude-sonnet"},
		{"gemini-2.5-flash", "gemini-flash"},
		{"models/gemini-2.5-flash", "gemini-flash"},
		{"deepseek-chat", "deepseek-chat"},
	}
	for _, c := range cases {
		if got := modelFamily(c.id); got != c.want {
			t.Errorf("modelFamily(%q) = %q, want %q", c.id, got, c.want)
		}
	}
}

func TestModelVersion(t *testing.T) {
	cases := []struct {
		id   string
		want float64
	}{
		{"gpt-4-turbo", 4},
		{"gemini-2.5-flash", 2.5},
		{"deepseek-chat", 0},
	}
	for _, c := range cases {
		if got := modelVersion(c.id); got != c.want {
			t.Errorf("modelVersion(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}

func TestPickUpgradePrefersLatest(t *testing.T) {
	current := ModelInfo{ID: "gpt-4-turbo", ContextLength: 128000, SupportsToolCalls: true}
	catalog := []ModelInfo{
		current,
		{ID: "gpt-5-turbo", ContextLength: 128000, SupportsToolCalls: true},
		{ID: "gpt-4-turbo-latest", ContextLength: 128000, SupportsToolCalls: true},
	}

	best, ok := pickUpgrade(current, catalog)
	if !ok {
		t.Fatal("pickUpgrade found nothing")
	}
	if best.ID != "gpt-4-turbo-latest" {
		t.Errorf("upgrade = %q, want gpt-4-turbo-latest", best.ID)
	}
}

func TestPickUpgradeHighestVersion(t *testing.T) {
	current := ModelInfo{ID: "gpt-4-turbo", ContextLength: 128000, SupportsToolCalls: true}
	catalog := []ModelInfo{
		current,
		{ID: "gpt-5-turbo", ContextLength: 128000, SupportsToolCalls: true},
		{ID: "gpt-3-turbo", ContextLength: 128000, SupportsToolCalls: true},
	}

	best, ok := pickUpgrade(current, catalog)
	if !ok {
		t.Fatal("pickUpgrade found nothing")
	}
	if best.ID != "gpt-5-turbo" {
		t.Errorf("upgrade = %q, want gpt-5-turbo", best.ID)
	}
}

func TestPickUpgradeRequiresCapabilitySuperset(t *testing.T) {
	current := ModelInfo{ID: "gpt-4-turbo", ContextLength: 128000, SupportsToolCalls: true, SupportsVision: true}
	catalog := []ModelInfo{
		current,
		// Newer but loses vision
		{ID: "gpt-5-turbo", ContextLength: 128000, SupportsToolCalls: true, SupportsVision: false},
		// Newer but smaller context
		{ID: "gpt-6-turbo", ContextLength: 8192, SupportsToolCalls: true, SupportsVision: true},
	}

	if _, ok := pickUpgrade(current, catalog); ok {
		t.Error("pickUpgrade accepted a capability downgrade")
	}
}

func TestPickUpgradeIgnoresOtherFamilies(t *testing.T) {
	current := ModelInfo{ID: "gpt-4-turbo", ContextLength: 128000, SupportsToolCalls: true}
	catalog := []ModelInfo{
		current,
		{ID: "claude-sonnet-4-latest", ContextLength: 200000, SupportsToolCalls: true, SupportsVision: true},
	}

	if _, ok := pickUpgrade(current, catalog); ok {
		t.Error("pickUpgrade crossed model families")
	}
}

func TestRefreshAllUpgradesModel(t *testing.T) {
	p := newStubProvider("a", true)
	p.setCatalog([]ModelInfo{{ID: "gpt-4-turbo", ContextLength: 128000, SupportsToolCalls: true}})
	p.setCurrent(ModelInfo{ID: "gpt-4-turbo", ContextLength: 128000, SupportsToolCalls: true})
	p.fetch = func(ctx context.Context) ([]ModelInfo, error) {
		return []ModelInfo{
			{ID: "gpt-4-turbo", ContextLength: 128000, SupportsToolCalls: true},
			{ID: "gpt-4-turbo-latest", ContextLength: 128000, SupportsToolCalls: true},
		}, nil
	}

	r := NewRegistry(p)
	r.Initialize(context.Background())

	if !NewRefresher(r).RefreshAll(context.Background()) {
		t.Fatal("RefreshAll reported a run in progress")
	}
	if got := p.CurrentModel().ID; got != "gpt-4-turbo-latest" {
		t.Errorf("current model = %q, want gpt-4-turbo-latest", got)
	}
}

func TestRefreshAllSkipsUncredentialed(t *testing.T) {
	p := newStubProvider("a", false)
	fetched := false
	p.fetch = func(ctx context.Context) ([]ModelInfo, error) {
		fetched = true
		return nil, nil
	}

	r := NewRegistry(p)
	NewRefresher(r).RefreshAll(context.Background())
	if fetched {
		t.Error("RefreshAll fetched models for an un-credentialed provider")
	}
}

func TestRefreshAllSingleFlight(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})

	p := newStubProvider("a", true)
	p.fetch = func(ctx context.Context) ([]ModelInfo, error) {
		close(started)
		<-block
		return p.AvailableModels(), nil
	}

	r := NewRegistry(p)
	refresher := NewRefresher(r)

	done := make(chan bool)
	go func() { done <- refresher.RefreshAll(context.Background()) }()
	<-started

	// Overlapping request is dropped, not queued
	if refresher.RefreshAll(context.Background()) {
		t.Error("overlapping RefreshAll was not dropped")
	}
	close(block)
	if !<-done {
		t.Error("first RefreshAll did not run")
	}
}

func TestRefreshProviderDoesNotUpgrade(t *testing.T) {
	p := newStubProvider("a", true)
	p.setCatalog([]ModelInfo{{ID: "gpt-4-turbo", ContextLength: 128000, SupportsToolCalls: true}})
	p.setCurrent(ModelInfo{ID: "gpt-4-turbo", ContextLength: 128000, SupportsToolCalls: true})
	p.fetch = func(ctx context.Context) ([]ModelInfo, error) {
		return []ModelInfo{
			{ID: "gpt-4-turbo", ContextLength: 128000, SupportsToolCalls: true},
			{ID: "gpt-4-turbo-latest", ContextLength: 128000, SupportsToolCalls: true},
		}, nil
	}

	r := NewRegistry(p)
	r.Initialize(context.Background())
	refresher := NewRefresher(r)

	if err := refresher.RefreshProvider(context.Background(), "a"); err != nil {
		t.Fatalf("RefreshProvider: %v", err)
	}
	// Manual refresh updates the catalog but keeps the pinned model
	if got := p.CurrentModel().ID; got != "gpt-4-turbo" {
		t.Errorf("current model = %q, want gpt-4-turbo", got)
	}
	if len(p.AvailableModels()) != 2 {
		t.Errorf("catalog size = %d, want 2", len(p.AvailableModels()))
	}

	if err := refresher.RefreshProvider(context.Background(), "nope"); err == nil {
		t.Error("RefreshProvider accepted unknown provider")
	}
}

func TestRefresherStartStop(t *testing.T) {
	p := newStubProvider("a", true)
	r := NewRegistry(p)

	refresher := NewRefresher(r).WithTiming(time.Hour, time.Hour)
	refresher.Start(context.Background())
	refresher.Start(context.Background()) // second start is a no-op
	refresher.Stop()
	refresher.Stop() // second stop is a no-op
}
