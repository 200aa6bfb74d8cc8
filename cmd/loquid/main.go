// Package main is the loquid server: it hosts voice conversation sessions
// over websockets, backed by Ollama, Whisper or Deepgram, and Kokoro.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loquilabs/loqui/core/chatstore"
	"github.com/loquilabs/loqui/core/config"
	"github.com/loquilabs/loqui/server"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "loquid",
	Short: "Voice conversation server",
	Long: `loquid hosts real-time voice conversations: streaming transcription,
LLM response generation and speech synthesis over one websocket per chat.

Providers are configured in the config file and can be adjusted at runtime
through config_change events.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := chatstore.NewBadger(chatstore.BadgerOptions{
			Dir: filepath.Join(cfg.Server.DataDir, "chats"),
		})
		if err != nil {
			return fmt.Errorf("failed to open chat store: %w", err)
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf("listening on %s", cfg.Server.ListenAddress)
		return server.New(cfg, store).ListenAndServe(ctx)
	},
}

func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
