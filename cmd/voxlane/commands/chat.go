package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/voxlane/voxlane/pkg/session"
	"github.com/voxlane/voxlane/pkg/signal"
	"github.com/voxlane/voxlane/pkg/transcript"
	"github.com/voxlane/voxlane/pkg/transport"
)

// chatConfig is the YAML config file for the chat command.
type chatConfig struct {
	TokenEndpoint string `yaml:"token_endpoint"`
	SandboxID     string `yaml:"sandbox_id"`
	AgentName     string `yaml:"agent_name"`
	Transport     string `yaml:"transport"` // "websocket" (default) or "webrtc"
}

var chatConfigPath string

var (
	agentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff9f")).Bold(true)
	localStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")).Italic(true)
	editMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")).Render(" (edited)")
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open a live session with the remote agent and chat from the console",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadChatConfig(chatConfigPath)
		if err != nil {
			return err
		}
		return runChat(cmd.Context(), cfg)
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatConfigPath, "config", "c", "voxlane.yaml", "config file path")
}

func loadChatConfig(path string) (*chatConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg chatConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.TokenEndpoint == "" {
		return nil, fmt.Errorf("config: token_endpoint is required")
	}
	return &cfg, nil
}

func newSessionFactory(kind string) (func() transport.Session, error) {
	switch kind {
	case "", "websocket":
		return func() transport.Session { return transport.NewWebSocketSession() }, nil
	case "webrtc":
		return func() transport.Session { return transport.NewWebRTCSession() }, nil
	default:
		return nil, fmt.Errorf("config: unknown transport %q", kind)
	}
}

func runChat(ctx context.Context, cfg *chatConfig) error {
	factory, err := newSessionFactory(cfg.Transport)
	if err != nil {
		return err
	}

	var tokenOpts []session.TokenOption
	if cfg.AgentName != "" {
		tokenOpts = append(tokenOpts, session.WithAgentName(cfg.AgentName))
	}

	ctrl, err := session.New(session.Config{
		Tokens:     session.NewTokenClient(cfg.TokenEndpoint, cfg.SandboxID, tokenOpts...),
		NewSession: factory,
		Notifier:   consoleNotifier{},
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	sess := ctrl.Session()
	if sess == nil {
		return fmt.Errorf("session did not become active")
	}

	hub := signal.NewHub()
	hub.Subscribe(transcript.SignalProcessingStarted, func(string) {
		fmt.Println(noticeStyle.Render("agent is thinking..."))
	})

	agg := transcript.NewAggregator()
	agg.Attach(sess)
	defer agg.Detach()

	printer := &transcriptPrinter{out: os.Stdout}
	if p := sess.LocalParticipant(); p != nil {
		printer.local = p.Identity
	}
	agg.OnChange(func() { printer.update(agg) })

	bridge := transcript.NewBridge(sess, agg, hub, slog.Default())

	fmt.Println(noticeStyle.Render("connected; type a message, or /quit to leave"))
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			break
		}
		bridge.Send(ctx, line)
	}

	ctrl.End()
	return scanner.Err()
}

// transcriptPrinter appends newly merged messages to out. The change hook
// fires on whichever goroutine ingested the update (the transport read
// loop for remote messages, the Send caller for echoes), so the cursor
// and the writes are mutex-guarded.
type transcriptPrinter struct {
	out   io.Writer
	local string

	mu       sync.Mutex
	rendered int
}

// update prints messages appended since the previous call. The merged
// sequence is append-mostly under live traffic; on reorder (an earlier
// timestamp arriving late) the whole tail reprints, which is acceptable
// for a console surface.
func (p *transcriptPrinter) update(agg *transcript.Aggregator) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs := agg.Messages()
	if p.rendered > len(msgs) {
		p.rendered = 0
	}
	for _, m := range msgs[p.rendered:] {
		name := m.Sender
		if name == "" {
			name = "?"
		}
		style := agentStyle
		if m.Sender == p.local {
			style = localStyle
		}
		suffix := ""
		if m.EditTimestamp != 0 {
			suffix = editMark
		}
		fmt.Fprintf(p.out, "%s %s%s\n", style.Render(name+":"), m.Text, suffix)
	}
	p.rendered = len(msgs)
}

// consoleNotifier surfaces user-visible session faults on stderr.
type consoleNotifier struct{}

func (consoleNotifier) Notify(n session.Notification) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", n.Title, n.Description)
}
