package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"policyqa-cli/internal/api"
	"policyqa-cli/internal/config"
	"policyqa-cli/internal/display"
	"policyqa-cli/internal/logging"
	"policyqa-cli/internal/session"
	"policyqa-cli/internal/tui"
)

const version = "0.1.0"

var activeProfile string

// errReported signals a failure the command has already shown to the user.
var errReported = errors.New("already reported")

func main() {
	args := os.Args[1:]

	args = parseGlobalFlags(args)

	// No args → launch interactive mode (default)
	if len(args) == 0 {
		exitOnError(cmdChat())
		return
	}

	var err error

	switch args[0] {
	case "chat", "-i", "--interactive":
		err = cmdChat()
	case "ask":
		err = cmdAsk(args[1:])
	case "conversations":
		err = cmdConversations()
	case "show":
		err = cmdShow(args[1:])
	case "set":
		err = cmdSet(args[1:])
	case "config":
		err = cmdConfig()
	case "profiles":
		err = cmdProfiles()
	case "help", "--help", "-h":
		printUsage()
	case "version", "--version", "-v":
		fmt.Println(versionString())
	default:
		display.Error(fmt.Sprintf("Unknown command: %s", args[0]))
		printUsage()
		os.Exit(1)
	}

	exitOnError(err)
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	if !errors.Is(err, errReported) {
		display.Error(err.Error())
	}
	os.Exit(1)
}

// setup resolves and validates the profile, then builds the logger and the
// API client every server-facing command needs.
func setup() (*config.Config, *zap.Logger, *api.Client, error) {
	cfg, err := config.Resolve(activeProfile)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	log := logging.Must(logging.Options{File: cfg.LogPath(), Level: cfg.LogLevel}).
		With(zap.String("profile", config.ProfileName(activeProfile)))
	return cfg, log, api.NewClient(cfg, log), nil
}

// ─── chat ───────────────────────────────────────────────────────────────────

func cmdChat() error {
	cfg, log, client, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	log.Info("interactive session started", zap.String("version", version))
	return tui.Run(tui.Options{
		Version: version,
		Profile: activeProfile,
		Config:  cfg,
		Client:  client,
		Log:     log,
	})
}

// ─── ask ────────────────────────────────────────────────────────────────────

type askOptions struct {
	question       string
	newChat        bool
	conversationID string
	timeout        time.Duration
}

func parseAskArgs(args []string) (askOptions, error) {
	var opts askOptions
	var positional []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--new", "-n":
			opts.newChat = true
		case "-c", "--conversation":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("--conversation requires a value")
			}
			i++
			opts.conversationID = args[i]
		case "-t", "--timeout":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("--timeout requires a value")
			}
			i++
			d, err := time.ParseDuration(args[i])
			if err != nil || d <= 0 {
				return opts, fmt.Errorf("invalid --timeout %q (e.g. 90s, 2m)", args[i])
			}
			opts.timeout = d
		default:
			positional = append(positional, args[i])
		}
	}

	if opts.newChat && opts.conversationID != "" {
		return opts, fmt.Errorf("--new and --conversation cannot be combined")
	}
	opts.question = strings.TrimSpace(strings.Join(positional, " "))
	return opts, nil
}

func cmdAsk(args []string) error {
	opts, err := parseAskArgs(args)
	if err != nil {
		return err
	}
	if opts.question == "" {
		fmt.Println(`Usage: policyqa ask "<question>" [--new] [--conversation <id>] [--timeout <duration>]`)
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println(`  policyqa ask "加班費怎麼算？"`)
		fmt.Println(`  policyqa ask --new --timeout 2m "特休假怎麼算？"`)
		return nil
	}

	cfg, log, client, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	conversationID := cfg.ConversationID
	switch {
	case opts.newChat:
		conversationID = ""
	case opts.conversationID != "":
		conversationID = opts.conversationID
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	history := session.NewHistory(client, conversationID)
	printer := display.NewPrinter(display.Out)
	coordinator := session.NewCoordinator(client, history, printer, log.Named("session"))

	fmt.Println()
	fmt.Printf("  %s %s\n", display.Dim("❯"), opts.question)
	if conversationID != "" {
		fmt.Printf("  %s\n", display.Dim("conversation "+conversationID))
	}
	fmt.Println()

	out := coordinator.Send(ctx, opts.question)

	switch out.Phase {
	case session.PhaseCommitted:
		if err := config.SaveConversation(activeProfile, out.ConversationID); err != nil {
			log.Warn("saving conversation id", zap.Error(err))
		}
		fmt.Println()
		return nil
	case session.PhaseCancelled:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("no complete answer within %s", opts.timeout)
		}
		return errReported
	default:
		return errReported
	}
}

// ─── conversations ──────────────────────────────────────────────────────────

func cmdConversations() error {
	cfg, log, client, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	history := session.NewHistory(client, cfg.ConversationID)
	list, err := history.Refresh(context.Background())
	if err != nil {
		return err
	}

	display.Header(fmt.Sprintf("Conversations (%d)", len(list)))
	display.Conversations(list, cfg.ConversationID)
	fmt.Println()
	fmt.Printf("  %s\n\n", display.Dim("Tip: policyqa show <id> to read · policyqa set conversation <id> to continue"))
	return nil
}

// ─── show ───────────────────────────────────────────────────────────────────

func cmdShow(args []string) error {
	cfg, log, client, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	id := cfg.ConversationID
	if len(args) > 0 {
		id = args[0]
	}
	if id == "" {
		return fmt.Errorf("no conversation given and none active. Usage: policyqa show <conversation-id>")
	}

	history := session.NewHistory(client, "")
	msgs, err := history.Open(context.Background(), id)
	if err != nil {
		return err
	}

	display.Header("Conversation " + id)
	if len(msgs) == 0 {
		display.Warn("No messages.")
		return nil
	}
	display.Transcript(msgs)
	fmt.Println()
	return nil
}

// ─── set ────────────────────────────────────────────────────────────────────

func cmdSet(args []string) error {
	if len(args) < 2 {
		fmt.Println("Usage: policyqa set <key> <value>")
		fmt.Println()
		fmt.Println("Keys:")
		fmt.Println("  server        Policy QA server URL  (e.g. http://localhost:8000)")
		fmt.Println("  token         Bearer token")
		fmt.Println("  username      Display name")
		fmt.Println("  conversation  Conversation to continue (\"none\" to start fresh)")
		fmt.Println("  log_level     debug, info, warn, error or off")
		return nil
	}

	cfg, err := config.Load(activeProfile)
	if err != nil {
		return err
	}

	key, value := args[0], args[1]

	switch key {
	case "server":
		cfg.Server = strings.TrimRight(value, "/")
	case "token":
		cfg.Token = value
	case "username", "user":
		cfg.Username = value
	case "conversation":
		if value == "none" {
			value = ""
		}
		cfg.ConversationID = value
	case "log_level", "log-level":
		cfg.LogLevel = value
	default:
		return fmt.Errorf("unknown config key: %s (valid: server, token, username, conversation, log_level)", key)
	}

	if err := cfg.Save(); err != nil {
		return err
	}

	shown := value
	if key == "token" {
		shown = maskToken(value)
	}
	display.Success(fmt.Sprintf("%s set to %s", key, shown))
	return nil
}

// ─── config ─────────────────────────────────────────────────────────────────

func cmdConfig() error {
	cfg, err := config.Resolve(activeProfile)
	if err != nil {
		return err
	}

	notSet := display.Dim("(not set)")
	orNotSet := func(s string) string {
		if s == "" {
			return notSet
		}
		return s
	}

	display.Header("Policy QA Configuration")

	display.Info("Profile:", config.ProfileName(activeProfile))
	display.Info("Server:", orNotSet(cfg.Server))
	display.Info("User:", orNotSet(cfg.Username))

	token := notSet
	if cfg.Token != "" {
		token = maskToken(cfg.Token)
	}
	display.Info("Token:", token)
	display.Info("Conversation:", orNotSet(cfg.ConversationID))
	display.Info("Log level:", orNotSet(cfg.LogLevel))
	display.Info("Log file:", cfg.LogPath())
	fmt.Println()

	if err := cfg.Validate(); err != nil {
		display.Warn(err.Error())
		fmt.Println()
	}
	return nil
}

// ─── profiles ───────────────────────────────────────────────────────────────

func cmdProfiles() error {
	profiles, err := config.ListProfiles()
	if err != nil {
		return err
	}

	display.Header(fmt.Sprintf("Profiles (%d)", len(profiles)))

	if len(profiles) == 0 {
		display.Warn("No profiles found.")
		return nil
	}

	for _, p := range profiles {
		marker := " "
		if p == config.ProfileName(activeProfile) {
			marker = "●"
		}
		fmt.Printf("  %s %s\n", marker, p)
	}
	fmt.Println()

	return nil
}

// ─── helpers ────────────────────────────────────────────────────────────────

func parseGlobalFlags(args []string) []string {
	var remaining []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--profile" {
			if i+1 < len(args) {
				i++
				activeProfile = args[i]
			}
			continue
		}
		remaining = append(remaining, args[i])
	}
	return remaining
}

func maskToken(token string) string {
	end := min(12, len(token))
	return token[:end] + "..."
}

func versionString() string {
	return fmt.Sprintf("policyqa %s", version)
}

// ─── usage ──────────────────────────────────────────────────────────────────

func printUsage() {
	fmt.Printf(`Policy QA CLI: HR policy and labour-law answers in your terminal (v%s)

Usage:
  policyqa                                            Launch interactive chat (default)
  policyqa [--profile <name>] <command> [arguments]   Run a specific command

Getting Started:
  set server <url>          Set the server URL
  set token <token>         Set the bearer token
  config                    Show current configuration

Asking:
  chat                      Interactive chat
  ask "<question>"          Ask one question (streams the answer)
    -n, --new               Start a new conversation
    -c, --conversation <id> Continue a specific conversation
    -t, --timeout <dur>     Give up after a duration (e.g. 2m)

Conversations:
  conversations             List conversations
  show [conversation-id]    Print a conversation (defaults to the active one)
  set conversation <id>     Continue a conversation next time ("none" to reset)

Profiles:
  profiles                  List all config profiles
  --profile <name>          Use a named config profile (default: unnamed)

Examples:
  policyqa set server http://localhost:8000
  policyqa ask "加班費怎麼算？"
  policyqa ask --new "特休假怎麼算？"
  policyqa --profile staging conversations

`, version)
}
