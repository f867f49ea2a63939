// Interactive chat console for the academic project-management platform.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/gestproy/console/internal/chat"
	"github.com/gestproy/console/internal/config"
	"github.com/gestproy/console/internal/export"
	"github.com/gestproy/console/internal/restapi"
	"github.com/gestproy/console/internal/store"
	"github.com/gestproy/console/internal/transport"
)

// printer renders session events on stdout. Streamed fragments are shown
// once complete; status pings get a short notice.
type printer struct{}

var _ chat.Observer = printer{}

func (printer) ConnectionStateChanged(sessionID string, state chat.ConnectionState) {
	fmt.Printf("[conexión] %s\n", state)
}

func (printer) MessageAppended(sessionID string, msg chat.Message) {
	if msg.Sender != chat.SenderBot {
		return
	}
	switch {
	case msg.Complete:
		fmt.Printf("asistente> %s\n", msg.Body)
	case msg.Status == chat.StatusProcessing:
		fmt.Printf("[asistente] %s\n", msg.Body)
	}
}

func (printer) MessageUpdated(sessionID string, msg chat.Message) {
	if msg.Sender == chat.SenderBot && msg.Complete {
		fmt.Printf("asistente> %s\n", msg.Body)
	}
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	role := chat.Role(cfg.UserRole)
	if !role.Valid() {
		slog.Error("Unknown USER_ROLE", "role", cfg.UserRole)
		os.Exit(1)
	}

	observers := []chat.Observer{printer{}}

	var transcripts store.TranscriptStore
	var recorder *store.Recorder
	if cfg.HistoryEnabled {
		transcripts, err = store.NewSQLite(cfg.DBPath)
		if err != nil {
			slog.Error("Failed to open transcript store", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := transcripts.Close(); closeErr != nil {
				slog.Warn("Failed to close transcript store", "error", closeErr)
			}
		}()
		recorder = store.NewRecorder(transcripts, logger)
		observers = append(observers, recorder)
	}

	channel := transport.NewSTOMPChannel(transport.Options{
		URL:       cfg.WSURL,
		Heartbeat: cfg.Heartbeat,
		Logger:    logger,
	})

	session := chat.NewSession(channel, chat.Config{
		Role:           role,
		ContextWindow:  cfg.ContextWindow,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logger,
	}, observers...)
	defer session.Close()

	if recorder != nil {
		recorder.RecordSession(session.ID(), role)
	}

	api := restapi.NewClient(cfg.APIBaseURL, nil)

	fmt.Printf("Sesión %s (%s). Escribe un mensaje, /ayuda para comandos.\n", session.ID(), role.Label())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := session.Open(ctx); err != nil {
		fmt.Printf("[conexión] no disponible todavía: %v\n", err)
	}
	cancel()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := runCommand(line, session, api); quit {
				return
			}
			continue
		}

		if err := session.Send(line); err != nil {
			if errors.Is(err, chat.ErrSendInFlight) {
				fmt.Println("[aviso] hay un envío en curso, espera un momento")
				continue
			}
			fmt.Printf("[aviso] %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("Input read failed", "error", err)
	}
}

// runCommand handles slash commands; returns true to exit.
func runCommand(line string, session *chat.Session, api *restapi.Client) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/salir", "/quit":
		return true
	case "/estado":
		fmt.Printf("[conexión] %s, %d mensajes\n", session.State(), len(session.Messages()))
	case "/salud":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		health, err := api.PlagiarismHealth(ctx)
		if err != nil {
			fmt.Printf("[aviso] servicio de originalidad no disponible: %v\n", err)
			return false
		}
		fmt.Printf("[originalidad] %s %s\n", health.Status, health.Message)
	case "/export":
		if len(fields) < 2 {
			fmt.Println("[aviso] uso: /export <fichero.csv|fichero.html>")
			return false
		}
		if err := exportTranscript(fields[1], session); err != nil {
			fmt.Printf("[aviso] exportación fallida: %v\n", err)
			return false
		}
		fmt.Printf("[export] conversación guardada en %s\n", fields[1])
	case "/ayuda":
		fmt.Println("Comandos: /estado /salud /export <fichero> /salir")
	default:
		fmt.Printf("[aviso] comando desconocido %s, prueba /ayuda\n", fields[0])
	}
	return false
}

func exportTranscript(path string, session *chat.Session) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	msgs := session.Messages()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return export.WriteCSV(f, msgs)
	case ".html", ".htm":
		return export.WriteHTML(f, session.ID(), msgs)
	default:
		return fmt.Errorf("unsupported export format %q", filepath.Ext(path))
	}
}
