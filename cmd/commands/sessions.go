package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/parrot/internal/config"
	"github.com/dohr-michael/parrot/internal/sessions"
)

// NewSessionsCommand returns the sessions subcommand.
func NewSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Inspect persisted conversations",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all sessions",
				Action: runSessionsList,
			},
			{
				Name:      "show",
				Usage:     "Show messages in a session",
				ArgsUsage: "<session_id|conversation_key>",
				Action:    runSessionsShow,
			},
		},
		DefaultCommand: "list",
	}
}

func runSessionsList(_ context.Context, _ *cli.Command) error {
	list, err := sessions.NewFileStore(config.SessionsPath()).List()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKEY\tSTATUS\tMESSAGES\tTOKENS\tUPDATED\tTITLE")
	for _, s := range list {
		title := s.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%s\t%s\n",
			s.ID,
			s.Key(),
			s.Status,
			s.MessageCount,
			s.TokenUsage.Input, s.TokenUsage.Output,
			s.UpdatedAt.Format("2006-01-02 15:04"),
			title,
		)
	}
	return w.Flush()
}

func runSessionsShow(_ context.Context, cmd *cli.Command) error {
	ref := cmd.Args().First()
	if ref == "" {
		return fmt.Errorf("usage: parrot sessions show <session_id|conversation_key>")
	}

	store := sessions.NewFileStore(config.SessionsPath())
	sess, err := lookupSession(store, ref)
	if err != nil {
		return err
	}

	msgs, err := store.LoadMessages(sess.ID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	fmt.Printf("%s  %s  (%s)\n\n", sess.ID, sess.Key(), sess.Status)
	if len(msgs) == 0 {
		fmt.Println("No messages in this session.")
		return nil
	}

	for _, m := range msgs {
		fmt.Printf("[%s] %s: %s\n", m.Ts.Format("15:04:05"), m.Role, m.Content)
	}
	return nil
}

// lookupSession accepts a sess_ id or a conversation key such as
// slack:C123:1700000000.0001.
func lookupSession(store *sessions.FileStore, ref string) (*sessions.Session, error) {
	if strings.Contains(ref, ":") {
		return store.FindByKey(ref)
	}
	return store.Get(ref)
}
