// Command execution for CLI commands.
//
// Information Hiding:
// - Service wiring (providers, storage, tools) hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/IC-Administrator/adept/config"
	"github.com/IC-Administrator/adept/llm"
	"github.com/IC-Administrator/adept/orchestrator"
	"github.com/IC-Administrator/adept/storage"
	"github.com/IC-Administrator/adept/tools"
)

// Options holds CLI execution options.
type Options struct {
	Provider string
	DBPath   string
	Stream   bool
	Verbose  bool
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		DBPath: ".adept/adept.db",
		Stream: true,
	}
}

const defaultSystemPrompt = "You are ADEPT, a teaching assistant. Answer clearly and concisely, " +
	"and use the available tools when a question requires file contents or external data."

// buildService wires configuration, providers, storage and tools into an
// orchestrator service. The returned cleanup closes storage and stops
// background work.
func buildService(ctx context.Context, opts Options) (*orchestrator.Service, func(), error) {
	settings, err := config.New(opts.Provider)
	if err != nil {
		return nil, nil, err
	}

	providers := make([]llm.Provider, 0, len(settings.LLM.Providers))
	for _, name := range settings.LLM.Providers {
		providerType, err := llm.ParseProviderType(name)
		if err != nil {
			return nil, nil, err
		}
		model, err := config.ModelFor(name)
		if err != nil {
			return nil, nil, err
		}
		provider, err := providerType.
			Model(model).
			MaxTokens(settings.LLM.MaxTokens).
			Temperature(float32(settings.LLM.Temperature)).
			FromEnvAllowEmpty()
		if err != nil {
			return nil, nil, err
		}
		providers = append(providers, provider)
	}

	registry := llm.NewRegistry(providers...).WithBackoff(settings.Service.FailureBackoff)
	refresher := llm.NewRefresher(registry).
		WithTiming(settings.Service.RefreshInterval, settings.Service.RefreshDelay)

	toolRegistry, err := tools.WithDefaults()
	if err != nil {
		return nil, nil, err
	}

	service := orchestrator.NewService(registry).
		WithProcessor(tools.NewProcessor(toolRegistry)).
		WithRefresher(refresher).
		WithReserveTokens(settings.Service.ReserveTokens).
		WithPromptProvider(storage.StaticPromptProvider{Prompt: defaultSystemPrompt})

	cleanup := service.Close
	dbPath := opts.DBPath
	if settings.Storage.DatabasePath != "" {
		dbPath = settings.Storage.DatabasePath
	}
	if dbPath != "" {
		repo, err := storage.OpenSqlite(dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		service = service.WithRepository(repo)
		if prompt, err := repo.SystemPrompt(ctx); err == nil && prompt != "" {
			service = service.WithPromptProvider(repo)
		}
		cleanup = func() {
			service.Close()
			repo.Close()
		}
	}

	if err := service.Start(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return service, cleanup, nil
}

// Ask sends a single message without conversation persistence.
func Ask(ctx context.Context, message string, opts Options) error {
	service, cleanup, err := buildService(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.Stream {
		response, err := streamSend(ctx, func(chunks chan<- string) (llm.Response, error) {
			return service.SendMessagesStreaming(ctx, "",
				[]llm.ChatMessage{llm.UserMessage(message)}, chunks)
		})
		if err != nil {
			return err
		}
		printProviderLine(response, opts)
		return nil
	}

	response, err := service.SendMessage(ctx, "", message)
	if err != nil {
		return err
	}
	fmt.Println(response.Text())
	printProviderLine(response, opts)
	return nil
}

// Chat starts an interactive chat session. An empty conversation ID
// starts a fresh conversation for the given class and date.
func Chat(ctx context.Context, conversationID, classID, date string, opts Options) error {
	service, cleanup, err := buildService(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if conversationID == "" {
		conversation, err := service.CreateConversation(ctx, classID, date)
		if err != nil {
			return err
		}
		conversationID = conversation.ID
		fmt.Printf("Started conversation %s\n", conversationID)
	} else {
		history, err := service.GetConversationHistory(ctx, conversationID)
		if err != nil {
			return err
		}
		fmt.Printf("Resuming conversation %s (%d messages)\n", conversationID, len(history))
	}

	fmt.Println("Type 'exit' to quit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		var response llm.Response
		if opts.Stream {
			fmt.Println()
			response, err = streamSend(ctx, func(chunks chan<- string) (llm.Response, error) {
				return service.SendMessageWithToolsStreaming(ctx, conversationID, input, chunks)
			})
			fmt.Println()
		} else {
			response, err = service.SendMessageWithTools(ctx, conversationID, input)
			if err == nil {
				fmt.Printf("\n%s\n", response.Text())
			}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
			continue
		}
		printProviderLine(response, opts)
		fmt.Println()
	}

	return scanner.Err()
}

// streamSend runs a streaming send, printing chunks as they arrive.
func streamSend(ctx context.Context, send func(chan<- string) (llm.Response, error)) (llm.Response, error) {
	chunks := make(chan string, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for chunk := range chunks {
			fmt.Print(chunk)
		}
	}()

	response, err := send(chunks)
	close(chunks)
	<-done
	if err != nil {
		return llm.Response{}, err
	}

	// Tool results are appended after the streamed text
	if streamed := response.Text(); strings.Contains(streamed, "\n\nTool: ") {
		if idx := strings.Index(streamed, "\n\nTool: "); idx >= 0 {
			fmt.Print(streamed[idx:])
		}
	}
	return response, nil
}

func printProviderLine(response llm.Response, opts Options) {
	if !opts.Verbose {
		return
	}
	if response.Provider == orchestrator.DegradedProvider {
		fmt.Println("(no provider available)")
		return
	}
	fmt.Printf("(%s / %s)\n", response.Provider, response.Model)
}

// ListProviders prints the configured providers and their status.
func ListProviders(ctx context.Context, opts Options) error {
	service, cleanup, err := buildService(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	for _, provider := range service.Providers() {
		status := "no API key"
		if provider.HasValidAPIKey() {
			status = "ready"
		}
		capabilities := []string{}
		if provider.SupportsToolCalls() {
			capabilities = append(capabilities, "tools")
		}
		if provider.SupportsVision() {
			capabilities = append(capabilities, "vision")
		}
		if provider.SupportsStreaming() {
			capabilities = append(capabilities, "streaming")
		}
		fmt.Printf("%-10s %-8s model=%s  [%s]\n",
			provider.Name(), status, provider.CurrentModel().ID, strings.Join(capabilities, ", "))
	}
	return nil
}

// ListModels prints the model catalog for one provider, optionally
// refreshing it from the provider API first.
func ListModels(ctx context.Context, providerName string, refresh bool, opts Options) error {
	service, cleanup, err := buildService(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	provider, ok := service.GetProvider(providerName)
	if !ok {
		return fmt.Errorf("unknown provider: %q", providerName)
	}

	if refresh {
		models, err := provider.FetchAvailableModels(ctx)
		if err != nil {
			return fmt.Errorf("failed to refresh models: %w", err)
		}
		fmt.Printf("Refreshed %d models from %s\n\n", len(models), provider.Name())
	}

	current := provider.CurrentModel().ID
	models := provider.AvailableModels()
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	for _, model := range models {
		marker := " "
		if model.ID == current {
			marker = "*"
		}
		fmt.Printf("%s %-40s ctx=%d", marker, model.ID, model.ContextLength)
		if model.SupportsToolCalls {
			fmt.Print(" tools")
		}
		if model.SupportsVision {
			fmt.Print(" vision")
		}
		fmt.Println()
	}
	return nil
}

// ListConversations prints stored conversations, newest first.
func ListConversations(ctx context.Context, opts Options) error {
	service, cleanup, err := buildService(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	conversations, err := service.ListConversations(ctx)
	if err != nil {
		return err
	}
	if len(conversations) == 0 {
		fmt.Println("No conversations.")
		return nil
	}
	for _, c := range conversations {
		class := c.ClassID
		if class == "" {
			class = "-"
		}
		date := c.Date
		if date == "" {
			date = "-"
		}
		fmt.Printf("%s  class=%-10s date=%-10s updated=%s\n",
			c.ID, class, date, c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// ShowConversation prints a conversation's message history.
func ShowConversation(ctx context.Context, id string, opts Options) error {
	service, cleanup, err := buildService(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	history, err := service.GetConversationHistory(ctx, id)
	if err != nil {
		return err
	}
	for _, msg := range history {
		fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
	}
	return nil
}

// DeleteConversation removes a stored conversation.
func DeleteConversation(ctx context.Context, id string, opts Options) error {
	service, cleanup, err := buildService(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := service.DeleteConversation(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", id)
	return nil
}

// ListTools prints the registered tools.
func ListTools(verbose bool) error {
	registry, err := tools.WithDefaults()
	if err != nil {
		return err
	}
	for _, name := range registry.Names() {
		tool, _ := registry.Get(name)
		meta := tool.Metadata()
		fmt.Printf("%-14s %s\n", meta.Name, meta.Description)
		if verbose {
			for _, param := range meta.Parameters {
				required := ""
				if param.Required {
					required = " (required)"
				}
				fmt.Printf("    %-12s %s: %s%s\n", param.Name, param.ParamType, param.Description, required)
			}
		}
	}
	return nil
}
