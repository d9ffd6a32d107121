package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	appchat "github.com/jbctechsolutions/cropcare/internal/application/chat"
	domainChat "github.com/jbctechsolutions/cropcare/internal/domain/chat"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/presentation/cli/output"
)

// chatOptions holds the flags of the chat command.
type chatOptions struct {
	fresh bool
}

var chatOpts chatOptions

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the farming assistant",
		Long: `Start an interactive conversation with the farming assistant.

Replies stream as they are written. Press Ctrl-C while a reply is streaming
to stop it; press Ctrl-C or Ctrl-D at the prompt to leave.

Commands:
  /retry     Send the last undelivered message again
  /history   Show saved conversations
  /help      Show this help
  /exit      End the session`,
		Args: cobra.NoArgs,
		RunE: runChat,
	}

	cmd.Flags().BoolVar(&chatOpts.fresh, "fresh", false, "do not load saved conversations")

	cmd.AddCommand(newChatAskCmd())
	cmd.AddCommand(newChatHistoryCmd())
	cmd.AddCommand(newChatForgetCmd())

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	c, formatter, err := connected(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	channel := c.Chat()

	if !chatOpts.fresh {
		if err := channel.Resume(ctx); err != nil {
			formatter.Warning("Could not load saved conversations: %s", domainerrors.UserMessage(err))
		}
	}

	out := cmd.OutOrStdout()
	renderer := output.NewChatRenderer(out, !formatter.IsJSON() && output.IsColorSupported())
	replay(renderer, out, channel.Transcript())
	channel.OnUpdate(renderer.Update)
	defer channel.OnUpdate(nil)

	if !c.Monitor().Online() {
		formatter.Warning("You are offline; messages will fail until the connection returns")
	}
	formatter.Info("Type your message and press Enter. Type /help for commands.")

	rl, err := readline.New("you> ")
	if err != nil {
		return fmt.Errorf("could not create readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			exit, err := handleChatCommand(cmd, line, channel, renderer, formatter)
			if err != nil {
				formatter.Error("%s", err.Error())
			}
			if exit {
				break
			}
			continue
		}

		sendChat(channel, renderer, formatter, func() error { return channel.Send(ctx, line) })
	}

	formatter.Info("Chat session ended. Goodbye!")
	return nil
}

// replay prints the transcript loaded before the session started.
func replay(renderer *output.ChatRenderer, w io.Writer, transcript []domainChat.Message) {
	for i, m := range transcript {
		switch {
		case i == 0 && m.Synthetic:
			renderer.Welcome(m)
		case m.Role == domainChat.RoleUser:
			fmt.Fprintf(w, "you> %s\n", m.Content)
		default:
			renderer.Update(m)
			renderer.Finish()
		}
	}
}

// sendChat runs one send with Ctrl-C routed to stopping the reply.
func sendChat(channel *appchat.Channel, renderer *output.ChatRenderer, formatter *output.Formatter, send func() error) {
	onInterrupt(channel.Cancel)
	err := send()
	onInterrupt(nil)
	renderer.Finish()

	switch {
	case err == nil, errors.Is(err, appchat.ErrEmptyMessage):
	case errors.Is(err, appchat.ErrInFlight):
		formatter.Warning("%s", err.Error())
	default:
		formatter.Warning("%s", domainerrors.UserMessage(err))
	}
}

// handleChatCommand handles special chat commands.
func handleChatCommand(cmd *cobra.Command, line string, channel *appchat.Channel, renderer *output.ChatRenderer, formatter *output.Formatter) (bool, error) {
	name := strings.ToLower(strings.Fields(line)[0])

	switch name {
	case "/exit", "/quit", "/q":
		return true, nil

	case "/help", "/?":
		formatter.Println("Commands:")
		formatter.Println("  /retry     Send the last undelivered message again")
		formatter.Println("  /history   Show saved conversations")
		formatter.Println("  /exit      End the session")
		return false, nil

	case "/retry":
		id := lastFailed(channel.Transcript())
		if id == "" {
			return false, errors.New("nothing to retry")
		}
		sendChat(channel, renderer, formatter, func() error { return channel.Retry(cmd.Context(), id) })
		return false, nil

	case "/history":
		history, err := channel.History(cmd.Context())
		if err != nil {
			return false, err
		}
		return false, formatter.ChatHistory(history)

	default:
		return false, fmt.Errorf("unknown command: %s (type /help for commands)", name)
	}
}

// lastFailed returns the id of the newest undelivered user message.
func lastFailed(transcript []domainChat.Message) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		m := transcript[i]
		if m.Role == domainChat.RoleUser && m.Status == domainChat.StatusError {
			return m.ID
		}
	}
	return ""
}

// ChatReply is the JSON shape of chat ask.
type ChatReply struct {
	Message  string `json:"message"`
	Response string `json:"response"`
}

func newChatAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask one question and print the streamed reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := connected(cmd)
			if err != nil {
				return err
			}
			channel := c.Chat()
			text := strings.Join(args, " ")

			if !formatter.IsJSON() {
				renderer := output.NewChatRenderer(cmd.OutOrStdout(), output.IsColorSupported())
				channel.OnUpdate(renderer.Update)
				defer channel.OnUpdate(nil)
				defer renderer.Finish()
			}

			onInterrupt(channel.Cancel)
			defer onInterrupt(nil)
			if err := channel.Send(cmd.Context(), text); err != nil {
				return err
			}

			if formatter.IsJSON() {
				return formatter.JSON(ChatReply{Message: text, Response: lastReply(channel.Transcript())})
			}
			return nil
		},
	}
}

// lastReply returns the content of the newest assistant message.
func lastReply(transcript []domainChat.Message) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == domainChat.RoleAssistant {
			return transcript[i].Content
		}
	}
	return ""
}

func newChatHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show saved conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := connected(cmd)
			if err != nil {
				return err
			}
			history, err := c.Chat().History(cmd.Context())
			if err != nil {
				return err
			}
			return formatter.ChatHistory(history)
		},
	}
}

func newChatForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <id>",
		Short: "Delete a saved exchange",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := connected(cmd)
			if err != nil {
				return err
			}
			if err := c.Chat().Forget(cmd.Context(), args[0]); err != nil {
				return err
			}
			if formatter.IsJSON() {
				return formatter.JSON(map[string]any{"id": args[0], "deleted": true})
			}
			return formatter.Success("Exchange %s deleted", args[0])
		},
	}
}
