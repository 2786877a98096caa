// Package chat provides the interactive chat and the commands that manage
// saved conversations.
package chat

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/klytics/sheetsense/internal/app"
	"github.com/klytics/sheetsense/internal/assistant"
	"github.com/klytics/sheetsense/internal/history"
	"github.com/klytics/sheetsense/internal/output"
	"github.com/klytics/sheetsense/internal/shell"
)

// NewCommand creates the "chat" command. Without a subcommand it starts the
// REPL.
func NewCommand() *cobra.Command {
	var (
		workbook     string
		sheetName    string
		selection    string
		conversation string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with your workbook",
		Long: `Start an interactive session. Each line you type is planned and applied
to the workbook; the exchange is saved as a conversation.

  sheetsense chat -w budget.xlsx
  sheetsense chat history
  sheetsense chat show <id>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if workbook == "" {
				return fmt.Errorf("no workbook given — pass --workbook <file.xlsx>")
			}
			a, err := app.Load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			asst, err := a.Assistant(app.AssistantOptions{
				Sheet:     sheetName,
				Selection: selection,
				History:   true,
			})
			if err != nil {
				return err
			}
			session, err := shell.NewSession(asst, a.Config.UserID, workbook, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			session.ConversationID = conversation
			for _, p := range a.Catalog.Procedures {
				session.Procedures = append(session.Procedures, p.Name)
			}
			return session.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&workbook, "workbook", "w", "", "Workbook to work on (.xlsx)")
	cmd.Flags().StringVar(&sheetName, "sheet", "", "Active sheet")
	cmd.Flags().StringVar(&selection, "selection", "", "Current selection, e.g. B2:D20")
	cmd.Flags().StringVar(&conversation, "conversation", "", "Continue an existing conversation")

	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newRenameCmd())
	cmd.AddCommand(newDeleteCmd())
	return cmd
}

// withStore loads the app and opens the history store.
func withStore(cmd *cobra.Command, fn func(a *app.App, s *history.Store) error) error {
	a, err := app.Load(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	store, err := a.History()
	if err != nil {
		return err
	}
	return fn(a, store)
}

func newHistoryCmd() *cobra.Command {
	var last int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(a *app.App, s *history.Store) error {
				convs, err := s.Conversations(cmd.Context(), a.Config.UserID)
				if err != nil {
					return err
				}
				if last > 0 && len(convs) > last {
					convs = convs[:last]
				}
				return a.Out.Result("chat history", convs, func(w io.Writer) {
					if len(convs) == 0 {
						fmt.Fprintln(w, "No conversations yet. Start one with 'sheetsense chat -w <workbook>'.")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					fmt.Fprintf(tw, "ID\tTITLE\tUPDATED\n")
					for _, c := range convs {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Title, c.UpdatedAt.Format("2006-01-02 15:04"))
					}
					tw.Flush()
				})
			})
		},
	}

	cmd.Flags().IntVar(&last, "last", 0, "Show only the N most recent conversations")
	return cmd
}

// transcript is the data of a show command.
type transcript struct {
	Conversation history.Conversation `json:"conversation"`
	Messages     []history.Message    `json:"messages"`
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(a *app.App, s *history.Store) error {
				conv, err := owned(cmd, a, s, args[0])
				if err != nil {
					return err
				}
				msgs, err := s.Messages(cmd.Context(), conv.ID)
				if err != nil {
					return err
				}
				if a.Out.JSON() {
					return a.Out.Result("chat show", transcript{Conversation: conv, Messages: msgs}, nil)
				}

				var sb strings.Builder
				w := output.NewWriter(&sb, output.FormatText)
				fmt.Fprintf(&sb, "%s\n\n", conv.Title)
				if len(msgs) == 0 {
					w.Bot(assistant.Greeting)
				}
				for _, m := range msgs {
					if m.Sender == history.SenderUser {
						w.User(m.Text)
					} else {
						w.Bot(m.Text)
					}
				}
				if output.ShouldPage(sb.String(), 40) {
					return output.Page(sb.String())
				}
				return a.Out.WriteText(sb.String())
			})
		},
	}
}

func owned(cmd *cobra.Command, a *app.App, s *history.Store, id string) (history.Conversation, error) {
	conv, err := s.Conversation(cmd.Context(), id)
	if err != nil {
		return conv, err
	}
	if conv.UserID != a.Config.UserID {
		return history.Conversation{}, history.ErrNotFound
	}
	return conv, nil
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(a *app.App, s *history.Store) error {
				if _, err := owned(cmd, a, s, args[0]); err != nil {
					return err
				}
				if err := s.Rename(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				return a.Out.Result("chat rename", map[string]string{"id": args[0], "title": args[1]}, func(w io.Writer) {
					fmt.Fprintf(w, "Renamed to %q\n", args[1])
				})
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(a *app.App, s *history.Store) error {
				if _, err := owned(cmd, a, s, args[0]); err != nil {
					return err
				}
				if err := s.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				return a.Out.Result("chat delete", map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted conversation %s\n", args[0])
				})
			})
		},
	}
}
