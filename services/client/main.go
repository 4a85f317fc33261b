package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chatclient/internal/attach"
	"github.com/chatclient/internal/config"
	"github.com/chatclient/internal/engine"
	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/receipts"
	"github.com/chatclient/internal/session"
	"github.com/chatclient/internal/transport"
	"github.com/google/uuid"
)

// consoleNotifier prints snapshots; it stands in for the render layer.
type consoleNotifier struct{}

func (consoleNotifier) SessionChanged(conversationID string, snapshot []model.MessageView) {
	fmt.Printf("--- %s (%d messages) ---\n", conversationID, len(snapshot))
	for _, m := range snapshot {
		status := ""
		if m.Status != model.StatusNone {
			status = " [" + string(m.Status) + "]"
		}
		seen := ""
		if len(m.SeenBy) > 0 {
			seen = fmt.Sprintf(" (seen by %d)", len(m.SeenBy))
		}
		fmt.Printf("  %s: %s%s%s\n", m.SenderID, m.Content, status, seen)
	}
}

func (consoleNotifier) Typing(conversationID, accountID string) {
	fmt.Printf("--- %s: %s is typing\n", conversationID, accountID)
}

func main() {
	logger.SetPrefix("client")
	account := flag.String("account", "", "account id (random if empty)")
	conversation := flag.String("conversation", "", "conversation to open (placeholder if empty)")
	flag.Parse()

	cfg := config.Load()
	if *account == "" {
		*account = uuid.New().String()
	}
	convID := *conversation
	if convID == "" {
		convID = model.PlaceholderPrefix + uuid.New().String()
	}

	backend := transport.NewRestClient(cfg.BackendURL, *account)
	sub := transport.NewSubscriber(cfg.RealtimeURL, *account)

	dir := session.NewDirectory(cfg.MaxOpenSessions)
	registry := attach.NewRegistry(cfg.SpoolDir)
	queue := receipts.NewQueue()

	eng := engine.New(backend, sub, consoleNotifier{}, dir, registry, queue, engine.Options{
		SelfID:            *account,
		PageSize:          cfg.PageSize,
		SendTimeout:       cfg.SendTimeout,
		PageTimeout:       cfg.PageTimeout,
		JoinRetryInterval: cfg.JoinRetryInterval,
		JoinRetryAttempts: cfg.JoinRetryAttempts,
	})
	sub.SetHandler(eng)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)

	if err := eng.Open(convID); err != nil {
		logger.Errorf("open conversation: %v", err)
	}
	logger.Infof("account=%s conversation=%s (type to send, /quit to exit)", *account, convID)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-stop:
			eng.Close(convID)
			return
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				eng.Close(convID)
				return
			}
			if _, err := eng.Send(convID, line, nil); err != nil {
				logger.Errorf("send: %v", err)
			}
		}
	}
}
