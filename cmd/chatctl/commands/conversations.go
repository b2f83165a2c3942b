package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"go-gemini-chat/internal/cache"
	"go-gemini-chat/internal/chatview"

	"github.com/spf13/cobra"
)

// NewConversationsCmd creates the conversations command.
func NewConversationsCmd(opts *Options) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations, newest first",
		Long: `List your conversations, most recently active first.

The list comes from the server and is merged into the local cache. When the
server is unreachable the cached list is shown.

Examples:
  chatctl conversations
  chatctl ls --offline`,
		Args: cobra.NoArgs,
		RunE: withEnv(opts, func(ctx context.Context, e *env, _ []string) error {
			if offline {
				printConversations(e.out, e.store.CachedConversations())
				return nil
			}
			convs, err := e.drawer(opts).Load(ctx)
			printConversations(e.out, convs)
			return err
		}),
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "show the cached list without contacting the server")
	return cmd
}

// NewRenameCmd creates the rename command.
func NewRenameCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <conversation-id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: withEnv(opts, func(ctx context.Context, e *env, args []string) error {
			id, err := parseConversationID(args[0])
			if err != nil {
				return err
			}
			c, err := e.drawer(opts).Rename(ctx, id, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "#%d renamed to %q\n", c.ID, c.Title)
			return nil
		}),
	}
}

// NewDeleteCmd creates the delete command.
func NewDeleteCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <conversation-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation and its messages",
		Args:    cobra.ExactArgs(1),
		RunE: withEnv(opts, func(ctx context.Context, e *env, args []string) error {
			id, err := parseConversationID(args[0])
			if err != nil {
				return err
			}
			err = e.drawer(opts).Delete(ctx, id)
			if errors.Is(err, chatview.ErrCancelled) {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "deleted #%d\n", id)
			return nil
		}),
	}
}

// NewClearCmd creates the clear command.
func NewClearCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every conversation",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(ctx context.Context, e *env, _ []string) error {
			n, err := e.drawer(opts).ClearAll(ctx)
			if errors.Is(err, chatview.ErrCancelled) {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "deleted %d conversations\n", n)
			return nil
		}),
	}
}

func parseConversationID(s string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid conversation id %q", s)
	}
	return uint(id), nil
}

func printConversations(w io.Writer, convs []cache.Conversation) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "no conversations yet, start one with `chatctl chat`")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tUPDATED")
	for _, c := range convs {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", c.ID, truncate(c.Title, 48), formatTime(c.UpdatedAt))
	}
	_ = tw.Flush()
}
