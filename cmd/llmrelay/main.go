// Package main is a small CLI over the llmrelay library: send a completion,
// embed text, or list the models visible through the configured providers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/scriptloom/llmrelay"
	"github.com/scriptloom/llmrelay/pkg/provider"
	"github.com/scriptloom/llmrelay/pkg/types"
)

var (
	flagConfig   string
	flagProvider string
	flagModel    string
	flagDebug    bool
	flagVerbose  bool
)

func main() {
	root := &cobra.Command{
		Use:           "llmrelay",
		Short:         "Resilient multi-provider LLM client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "optional YAML provider configuration file")
	root.PersistentFlags().StringVar(&flagProvider, "provider", "", "pin the request to one provider identity")
	root.PersistentFlags().StringVar(&flagModel, "model", "", "model id (empty auto-selects)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "attach debug payloads to fallback errors")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(completeCmd(), embedCmd(), modelsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func completeCmd() *cobra.Command {
	var system string
	var temperature float64
	cmd := &cobra.Command{
		Use:   "complete [prompt]",
		Short: "Send a chat completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := buildClient()
			if err != nil {
				return err
			}
			defer client.Close()

			req := &llmrelay.CompletionRequest{
				Model:    flagModel,
				Messages: []llmrelay.Message{{Role: types.RoleUser, Content: args[0]}},
				System:   system,
				Provider: flagProvider,
			}
			if cmd.Flags().Changed("temperature") {
				req.Temperature = &temperature
			}

			resp, err := client.Complete(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Println(resp.Text())
			if flagVerbose {
				printJSON(os.Stderr, resp)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "system prompt")
	cmd.Flags().Float64Var(&temperature, "temperature", llmrelay.DefaultTemperature, "sampling temperature")
	return cmd
}

func embedCmd() *cobra.Command {
	var dimensions int
	cmd := &cobra.Command{
		Use:   "embed [text]...",
		Short: "Embed one or more texts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := buildClient()
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.Embed(cmd.Context(), &llmrelay.EmbeddingRequest{
				Model:      flagModel,
				Input:      types.NewEmbeddingInputs(args),
				Dimensions: dimensions,
				Provider:   flagProvider,
			})
			if err != nil {
				return err
			}
			printJSON(os.Stdout, resp)
			return nil
		},
	}
	cmd.Flags().IntVar(&dimensions, "dimensions", 0, "requested vector dimensions")
	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models visible through the configured providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := buildClient()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			printJSON(os.Stdout, client.ListModels(ctx, llmrelay.Identity(flagProvider)))
			return nil
		},
	}
}

// buildClient assembles a client from the YAML config file when given, else
// from well-known environment variables. A .env file is honored if present.
func buildClient() (*llmrelay.Client, error) {
	_ = godotenv.Load()

	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []llmrelay.Option{
		llmrelay.WithLogger(logger),
		llmrelay.WithDebugMode(flagDebug),
	}
	if dir, err := os.UserCacheDir(); err == nil {
		opts = append(opts, llmrelay.WithCacheDir(dir+"/llmrelay/models"))
	}

	var configs []provider.Config
	var err error
	if flagConfig != "" {
		configs, err = loadConfigFile(flagConfig)
	} else {
		configs = configsFromEnv()
	}
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("no providers configured: set OPENAI_API_KEY, GITHUB_TOKEN, or ANTHROPIC_API_KEY, or pass --config")
	}
	for _, cfg := range configs {
		opts = append(opts, llmrelay.WithProvider(cfg))
	}

	return llmrelay.New(opts...)
}

// configsFromEnv builds provider configurations from the conventional
// environment variables, in preference order.
func configsFromEnv() []provider.Config {
	var configs []provider.Config
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		configs = append(configs, provider.Config{
			Identity: llmrelay.IdentityOpenAICompatible,
			APIKey:   key,
			BaseURL:  os.Getenv("OPENAI_BASE_URL"),
		})
	}
	if key := os.Getenv("GITHUB_TOKEN"); key != "" {
		configs = append(configs, provider.Config{
			Identity: llmrelay.IdentityGitHubModels,
			APIKey:   key,
		})
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		configs = append(configs, provider.Config{
			Identity: llmrelay.IdentityClaudeCode,
			APIKey:   key,
		})
	}
	return configs
}

func printJSON(w *os.File, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
