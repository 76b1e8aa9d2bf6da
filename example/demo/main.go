package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	concierge "github.com/codewandler/concierge-go"
	"github.com/codewandler/concierge-go/chat"
	"github.com/codewandler/concierge-go/events"
	"github.com/codewandler/concierge-go/tool"
	"github.com/gordonklaus/portaudio"
	"github.com/joho/godotenv"
)

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var (
		debug       = false
		backend     = "genai"
		project     = os.Getenv("GOOGLE_CLOUD_PROJECT")
		location    = "us-central1"
		formBackend = ""
		voice       = concierge.DefaultVoice
	)

	flag.BoolVar(&debug, "debug", false, "enable debug logs")
	flag.StringVar(&backend, "backend", backend, "text chat backend: genai or vertex")
	flag.StringVar(&project, "project", project, "google cloud project for the vertex backend")
	flag.StringVar(&location, "location", location, "google cloud location for the vertex backend")
	flag.StringVar(&formBackend, "form-endpoint", formBackend, "interest form endpoint, simulated when empty")
	flag.StringVar(&voice, "voice", voice, "voice of the concierge")
	flag.Parse()

	slog.SetLogLoggerLevel(slog.LevelError)
	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	must(portaudio.Initialize())
	defer portaudio.Terminate()

	var sender tool.FormSender = &tool.SimulatedSender{Delay: tool.DefaultSimulatedDelay, Logger: slog.Default()}
	if formBackend != "" {
		sender = &tool.HTTPSender{Endpoint: formBackend}
	}
	dispatcher := tool.NewDispatcher(slog.Default(), tool.NewInterestForm(sender))

	client := concierge.New(
		concierge.WithDefaultLogger(),
		concierge.WithDispatcher(dispatcher),
		concierge.WithVoice(voice),
		concierge.WithOutputTranscription(),
		concierge.WithMicrophone(paMicrophone{}),
		concierge.WithSpeaker(paSpeaker{}),
	)
	client.OnEvent(func(e events.Event) {
		switch x := e.(type) {
		case events.ContentEvent:
			if x.Transcript != "" {
				fmt.Print(x.Transcript)
			}
			if x.TurnComplete {
				fmt.Println()
			}
		case events.InterruptedEvent:
			fmt.Println(" [interrupted]")
		}
	})

	widget := concierge.NewWidget(client)
	widget.OnModeChange(func(m concierge.Mode) {
		fmt.Printf("-- %s mode --\n", m)
	})

	conv, err := newConversation(ctx, backend, project, location, dispatcher)
	must(err)
	session := chat.NewSession(conv, dispatcher, chat.WithLogger(slog.Default()))

	widget.Open()
	last, _ := session.Transcript().Last()
	fmt.Println("concierge>", last.Text)
	fmt.Println("type a message, /voice to toggle voice mode, /quit to exit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			widget.Close()
			return
		case line, ok := <-lines:
			if !ok {
				widget.Close()
				return
			}
			switch strings.TrimSpace(line) {
			case "/quit":
				widget.Close()
				return
			case "/voice":
				if widget.Mode() == concierge.ModeVoice {
					widget.StopVoice()
					continue
				}
				if err := widget.StartVoice(ctx); err != nil {
					fmt.Println("voice unavailable:", err)
				}
			default:
				reply, err := session.Send(ctx, line)
				if err != nil {
					last, _ := session.Transcript().Last()
					fmt.Println("system>", last.Text)
					continue
				}
				if reply != "" {
					fmt.Println("concierge>", reply)
				}
			}
		}
	}
}

func newConversation(ctx context.Context, backend, project, location string, dispatcher *tool.Dispatcher) (chat.Conversation, error) {
	cfg := chat.Config{
		Instruction: concierge.DefaultInstruction,
		Tools:       dispatcher.Declarations(),
	}

	switch backend {
	case "genai":
		key := os.Getenv(concierge.ApiKeyEnvVarName)
		if key == "" {
			key = os.Getenv(concierge.ApiKeyEnvVarNameGoogle)
		}
		if key == "" {
			key = os.Getenv(concierge.ApiKeyEnvVarNameShort)
		}
		return chat.NewGenAI(ctx, key, cfg)
	case "vertex":
		return chat.NewVertex(ctx, project, location, cfg)
	default:
		return nil, fmt.Errorf("unknown backend: %s", backend)
	}
}
