package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go-gemini-chat/internal/cache"
	"go-gemini-chat/internal/chatview"

	"github.com/spf13/cobra"
)

// NewSendCmd creates the send command.
func NewSendCmd(opts *Options) *cobra.Command {
	var conversation string
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Long: `Send one message and print the assistant's reply.

Without --conversation a new conversation is created.

Examples:
  chatctl send "what is a monad?"
  chatctl send --conversation 42 "shorter please"`,
		Args: cobra.MinimumNArgs(1),
		RunE: withEnv(opts, func(ctx context.Context, e *env, args []string) error {
			var id uint
			if conversation != "" {
				var err error
				if id, err = parseConversationID(conversation); err != nil {
					return err
				}
			}
			s := e.session(id)
			turn, err := s.Send(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if turn.AIMessage != nil {
				fmt.Fprintln(e.out, turn.AIMessage.Content)
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "conversation id")
	return cmd
}

// NewChatCmd creates the interactive chat command.
func NewChatCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [conversation-id]",
		Short: "Chat interactively",
		Long: `Open a conversation and chat line by line. Without an id a new
conversation starts with your first message.

Commands inside the chat:
  /more   load older messages
  /quit   leave`,
		Args: cobra.MaximumNArgs(1),
		RunE: withEnv(opts, func(ctx context.Context, e *env, args []string) error {
			var id uint
			if len(args) == 1 {
				var err error
				if id, err = parseConversationID(args[0]); err != nil {
					return err
				}
			}
			s := e.session(id)
			// A failed load still leaves the cached history on screen.
			_ = s.Open(ctx)
			printMessages(e.out, s.Messages())
			return runChat(ctx, e, s)
		}),
	}
}

func runChat(ctx context.Context, e *env, s *chatview.Session) error {
	scanner := bufio.NewScanner(e.in)
	for {
		fmt.Fprint(e.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(e.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/more":
			before := len(s.Messages())
			if !s.HasMore() {
				fmt.Fprintln(e.out, "(beginning of conversation)")
				continue
			}
			if err := s.FetchMore(ctx); err != nil {
				continue
			}
			msgs := s.Messages()
			printMessages(e.out, msgs[:len(msgs)-before])
			continue
		}

		turn, err := s.Send(ctx, line)
		if errors.Is(err, context.Canceled) {
			return err
		}
		if err != nil {
			fmt.Fprintln(e.out, "(not sent)")
			continue
		}
		if turn.AIMessage != nil {
			fmt.Fprintf(e.out, "ai: %s\n", turn.AIMessage.Content)
		}
	}
}

// NewHistoryCmd creates the history command.
func NewHistoryCmd(opts *Options) *cobra.Command {
	var all, offline bool
	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print a conversation's messages",
		Long: `Print the newest page of a conversation, or all of it with --all.

Examples:
  chatctl history 42
  chatctl history 42 --all
  chatctl history 42 --offline`,
		Args: cobra.ExactArgs(1),
		RunE: withEnv(opts, func(ctx context.Context, e *env, args []string) error {
			id, err := parseConversationID(args[0])
			if err != nil {
				return err
			}
			if offline {
				printMessages(e.out, e.store.CachedMessages(id))
				return nil
			}

			s := e.session(id)
			if err := s.Open(ctx); err != nil {
				return err
			}
			for all && s.HasMore() {
				if err := s.FetchMore(ctx); err != nil {
					return err
				}
			}
			printMessages(e.out, s.Messages())
			return nil
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "page back through the whole conversation")
	cmd.Flags().BoolVar(&offline, "offline", false, "print the cached messages without contacting the server")
	return cmd
}

func (e *env) session(id uint) *chatview.Session {
	return chatview.NewSession(e.api, e.store, e.bus, e.logger, id, e.cfg.PageSize)
}

func printMessages(w io.Writer, msgs []cache.Message) {
	for _, m := range msgs {
		status := ""
		if m.Status == chatview.StatusFailed {
			status = " (failed)"
		}
		fmt.Fprintf(w, "[%s] %s: %s%s\n", m.Timestamp.Local().Format("Jan 2 15:04"), m.Sender, m.Text, status)
	}
}
