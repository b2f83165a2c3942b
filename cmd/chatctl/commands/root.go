package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go-gemini-chat/internal/apiclient"
	"go-gemini-chat/internal/cache"
	"go-gemini-chat/internal/config"
	"go-gemini-chat/internal/events"
	"go-gemini-chat/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Options are the global flags shared by every subcommand.
type Options struct {
	ConfigPath string
	ServerURL  string
	Verbose    bool
	Yes        bool
}

// env is what a command needs to talk to the server and the local cache.
type env struct {
	cfg    *config.Client
	logger *zap.Logger
	store  *cache.Store
	api    *apiclient.Client
	bus    *events.Bus
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// NewRootCmd creates the chatctl root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "chatctl",
		Short: "Chat with Gemini from the terminal",
		Long: `chatctl talks to the chat server, keeps a local cache of your
conversations and renders it immediately while the server catches up.

Examples:
  chatctl login --email ada@example.com
  chatctl chat
  chatctl conversations
  chatctl history 42 --all`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", config.DefaultClientPath(), "path to config.toml")
	cmd.PersistentFlags().StringVar(&opts.ServerURL, "server", "", "server URL (overrides config)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")
	cmd.PersistentFlags().BoolVarP(&opts.Yes, "yes", "y", false, "do not ask for confirmation")

	cmd.AddCommand(
		NewSignupCmd(opts),
		NewLoginCmd(opts),
		NewLogoutCmd(opts),
		NewWhoamiCmd(opts),
		NewConversationsCmd(opts),
		NewRenameCmd(opts),
		NewDeleteCmd(opts),
		NewClearCmd(opts),
		NewSendCmd(opts),
		NewChatCmd(opts),
		NewHistoryCmd(opts),
		NewVersionCmd(),
	)
	return cmd
}

// withEnv opens the config, cache and API client around fn.
func withEnv(opts *Options, fn func(ctx context.Context, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		cfg, err := config.LoadClient(opts.ConfigPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if opts.ServerURL != "" {
			cfg.ServerURL = opts.ServerURL
		}

		logger := logging.NewConsole(opts.Verbose)
		defer func() { _ = logger.Sync() }()

		store, err := cache.Open(cfg.CachePath, logger)
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		defer func() { _ = store.Close() }()

		api := apiclient.New(cfg.ServerURL, &http.Client{Timeout: 90 * time.Second})
		api.SetToken(store.Session())

		e := &env{
			cfg:    cfg,
			logger: logger,
			store:  store,
			api:    api,
			bus:    events.New(),
			in:     cmd.InOrStdin(),
			out:    cmd.OutOrStdout(),
			errOut: cmd.ErrOrStderr(),
		}
		stop := e.printEvents()
		defer stop()

		return fn(cmd.Context(), e, args)
	}
}

// printEvents writes toasts and session changes to stderr until stopped.
func (e *env) printEvents() func() {
	ch, unsub := e.bus.Subscribe("", 32)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case evt := <-ch:
				e.printEvent(evt)
			case <-stop:
				// Flush what was published before stop.
				for {
					select {
					case evt := <-ch:
						e.printEvent(evt)
					default:
						return
					}
				}
			}
		}
	}()
	return func() {
		unsub()
		close(stop)
		<-done
	}
}

func (e *env) printEvent(evt events.Event) {
	switch p := evt.Payload.(type) {
	case events.Toast:
		fmt.Fprintf(e.errOut, "[%s] %s: %s\n", evt.Kind, p.Title, p.Message)
	case events.Redirect:
		fmt.Fprintf(e.errOut, "conversation #%d\n", p.ConversationID)
	default:
		if evt.Kind == events.SessionLogout {
			fmt.Fprintln(e.errOut, "signed out, run `chatctl login`")
		}
	}
}
