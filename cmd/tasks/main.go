package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"github.com/tasksuite/tasks/internal/config"
	"github.com/tasksuite/tasks/internal/logging"
	"github.com/tasksuite/tasks/internal/platform"
	"github.com/tasksuite/tasks/internal/tui"
	"github.com/tasksuite/tasks/internal/ui/chatpanel"
	"github.com/tasksuite/tasks/internal/ui/stats"
	"github.com/tasksuite/tasks/internal/ui/tasklist"
)

func main() {
	cfg := config.LoadClientConfig()

	// The screen belongs to the TUI, so logs go to a file.
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open log file %s: %v\n", cfg.LogFile, err)
		os.Exit(1)
	}
	defer logFile.Close()
	logging.Init(cfg.LogLevel, "text", logFile)

	client := platform.NewClient(cfg.ServerURL, cfg.Token)
	tasks := tasklist.New(client.Tasks(), client.Auth(), client.Functions())
	card := stats.New(client.Functions())
	chat := chatpanel.New(client.Auth(), client.Agents())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(tui.New(ctx, tasks, card, chat, client.Auth().TokenURL()), tea.WithAltScreen())
	chat.OnChange = func() { p.Send(tui.ChatChangedMsg{}) }
	chat.OnTasksChanged = func() { p.Send(tui.TasksChangedMsg{}) }

	log.Infof("Connecting to %s", client.BaseURL())
	_, runErr := p.Run()
	chat.Close()
	tasks.WaitNotifications()
	if runErr != nil {
		log.Errorf("TUI exited with error: %v", runErr)
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}
