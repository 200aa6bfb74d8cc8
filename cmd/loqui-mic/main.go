// Package main is loqui-mic, a terminal client for a loquid server: it
// streams microphone audio up, renders the conversation as it happens and
// plays synthesized speech back.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loquilabs/loqui/core/audio"
	"github.com/loquilabs/loqui/core/audio/miniaudio"
	"github.com/loquilabs/loqui/core/audio/portaudio"
)

const captureBufferSize = 1600 // 100ms at 16kHz

// audioClient is the capture/playback surface both audio backends provide.
type audioClient interface {
	StartCapture(ctx context.Context, onAudio func(chunk []byte)) error
	StopCapture() error
	Play(samples []byte) error
	AwaitDrain(ctx context.Context) error
	ClearPlayback()
	Close()
	EncodingInfo() audio.EncodingInfo
}

var (
	serverHost   string
	chatID       string
	audioBackend string
	textOnly     bool
)

var rootCmd = &cobra.Command{
	Use:   "loqui-mic",
	Short: "Terminal microphone client for a loquid server",
	Long: `loqui-mic connects to a loquid server and holds a voice conversation
from the terminal: microphone audio streams up over the websocket, the
transcript and response render live, and synthesized speech plays back.

Type to send a prompt directly; tab toggles the microphone.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if chatID == "" {
			chatID = uuid.NewString()
		} else if _, err := uuid.Parse(chatID); err != nil {
			return fmt.Errorf("chat id must be a uuid: %w", err)
		}

		var speaker audioClient
		if !textOnly {
			var err error
			speaker, err = newAudioClient(audioBackend)
			if err != nil {
				return err
			}
			defer speaker.Close()
		}

		client, err := dialChat(cmd.Context(), serverHost, chatID)
		if err != nil {
			return err
		}
		defer client.close()

		program := tea.NewProgram(newModel(client, speaker), tea.WithAltScreen())
		_, err = program.Run()
		return err
	},
}

func newAudioClient(backend string) (audioClient, error) {
	switch backend {
	case "portaudio":
		return portaudio.NewClient(captureBufferSize)
	case "miniaudio":
		return miniaudio.NewClient()
	default:
		return nil, fmt.Errorf("unknown audio backend %q (portaudio or miniaudio)", backend)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&serverHost, "server", "s", "localhost:8000", "loquid server host")
	rootCmd.Flags().StringVarP(&chatID, "chat", "c", "", "chat id to join (default: a fresh chat)")
	rootCmd.Flags().StringVarP(&audioBackend, "audio", "a", "portaudio", "audio backend, portaudio or miniaudio")
	rootCmd.Flags().BoolVar(&textOnly, "text-only", false, "disable audio capture and playback")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
