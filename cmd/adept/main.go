// Package main provides the adept CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/IC-Administrator/adept/cli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider string
	dbPath   string
	noStream bool
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "adept",
		Short: "Multi-provider LLM teaching assistant",
		Long: `A teaching-assistant CLI backed by multiple LLM providers.

Requests go to the preferred provider and fail over automatically when
it errors. Conversations are trimmed to the model's context window and
persisted to SQLite, and replies can call registered tools.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "Preferred LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", ".adept/adept.db", "Database path for conversation storage")
	rootCmd.PersistentFlags().BoolVar(&noStream, "no-stream", false, "Disable streaming output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show provider and model for each reply")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(conversationsCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider: provider,
		DBPath:   dbPath,
		Stream:   !noStream,
		Verbose:  verbose,
	}
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [message]",
		Short: "Send a one-shot message without saving a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Ask(context.Background(), args[0], options())
		},
	}
}

func chatCmd() *cobra.Command {
	var conversationID string
	var classID string
	var date string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session with tool support.

A new conversation is created unless --conversation resumes an existing
one. History is persisted after every exchange.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Chat(context.Background(), conversationID, classID, date, options())
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Conversation ID to resume")
	cmd.Flags().StringVar(&classID, "class", "", "Class identifier for a new conversation")
	cmd.Flags().StringVar(&date, "date", "", "Lesson date (YYYY-MM-DD) for a new conversation")

	return cmd
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListProviders(context.Background(), options())
		},
	}
}

func modelsCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "models [provider]",
		Short: "List a provider's model catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListModels(context.Background(), args[0], refresh, options())
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Re-fetch the catalog from the provider API")

	return cmd
}

func conversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "Manage stored conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListConversations(context.Background(), options())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show [id]",
		Short: "Print a conversation's message history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ShowConversation(context.Background(), args[0], options())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.DeleteConversation(context.Background(), args[0], options())
		},
	})

	return cmd
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(verboseTools)
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}
