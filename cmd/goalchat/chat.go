package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"goalchat/models"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session.

Lines are sent to the active conversation; with no active conversation the
line starts a new one. Type /help for the slash commands.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	r := &repl{
		session: s,
		out:     cmd.OutOrStdout(),
		render:  newRenderer(raw),
	}
	fmt.Fprintf(r.out, "Hi %s! Type a message, or /help for commands.\n", s.user.Name)
	r.printLoadNotice()
	r.printActive()
	return r.run(ctx, os.Stdin)
}

var errQuit = errors.New("quit")

// repl reads lines and dispatches slash commands or chat turns.
type repl struct {
	*session
	out    io.Writer
	render *renderer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(r.out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := r.handle(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		return r.send(ctx, line)
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return errQuit
	case "/help":
		r.printHelp()
	case "/new":
		return r.newConversation(ctx, arg)
	case "/list":
		r.printList()
	case "/open":
		return r.open(arg)
	case "/close":
		r.store.SelectConversation("")
		fmt.Fprintln(r.out, "No conversation selected. Your next message starts a new one.")
	case "/rename":
		return r.rename(arg)
	case "/goal":
		r.printGoal()
	case "/toggle":
		if arg == "" {
			return fmt.Errorf("usage: /toggle <task-id>")
		}
		if err := r.store.ToggleTask(arg); err != nil {
			return err
		}
		r.printGoal()
	case "/progress":
		if err := r.store.UpdateProgressSummary(arg); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "Progress summary updated.")
	case "/prompts":
		return r.suggest(ctx, arg)
	default:
		return fmt.Errorf("unknown command %s (try /help)", name)
	}
	return nil
}

func (r *repl) send(ctx context.Context, text string) error {
	if err := r.orch.Send(ctx, r.user.ID, text); err != nil {
		return err
	}
	r.printLastReply()
	return nil
}

func (r *repl) newConversation(ctx context.Context, initial string) error {
	conv, err := r.orch.StartConversation(ctx, r.user.ID, initial)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Started %q\n", conv.Title)
	if initial != "" {
		r.printLastReply()
	}
	return nil
}

func (r *repl) open(arg string) error {
	convs := r.store.Conversations()
	id := arg
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(convs) {
		id = convs[n-1].ID
	}
	if !r.store.SelectConversation(id) {
		return fmt.Errorf("no conversation %q", arg)
	}
	r.printActive()
	return nil
}

func (r *repl) rename(title string) error {
	active, ok := r.store.ActiveConversation()
	if !ok {
		return fmt.Errorf("no active conversation")
	}
	if title == "" {
		return fmt.Errorf("usage: /rename <title>")
	}
	return r.store.RenameConversation(active.ID, title)
}

func (r *repl) suggest(ctx context.Context, arg string) error {
	list, err := r.prompts(ctx)
	if err != nil {
		return err
	}
	if arg == "" {
		for i, p := range list {
			fmt.Fprintf(r.out, "%d. %s %s\n", i+1, p.Icon, p.Text)
		}
		return nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(list) {
		return fmt.Errorf("no prompt %q", arg)
	}
	return r.send(ctx, list[n-1].Text)
}

func (r *repl) printLoadNotice() {
	if r.loadErr == nil {
		return
	}
	fmt.Fprintf(r.out, "Could not load your conversations (%v).\nStarting with an empty history; new messages still work.\n", r.loadErr)
}

func (r *repl) printHelp() {
	fmt.Fprint(r.out, `Commands:
  /new [message]     start a conversation, optionally with a first message
  /list              list conversations
  /open <n|id>       switch to a conversation
  /close             deselect the active conversation
  /rename <title>    rename the active conversation
  /goal              show the active goal
  /toggle <task-id>  toggle a task between completed and in progress
  /progress <text>   replace the goal's progress summary
  /prompts [n]       list suggested prompts, or send prompt n
  /quit              leave
`)
}

func (r *repl) printList() {
	convs := r.store.Conversations()
	if len(convs) == 0 {
		fmt.Fprintln(r.out, "No conversations yet.")
		return
	}
	active, _ := r.store.ActiveConversation()
	for i, c := range convs {
		marker := " "
		if c.ID == active.ID {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %d. %s (%d messages, %s)\n", marker, i+1, c.Title, len(c.Messages),
			c.UpdatedAt.Local().Format("Jan 2 15:04"))
	}
}

func (r *repl) printActive() {
	active, ok := r.store.ActiveConversation()
	if !ok {
		return
	}
	fmt.Fprintf(r.out, "== %s ==\n", active.Title)
	for _, m := range active.Messages {
		r.printMessage(m)
	}
}

func (r *repl) printLastReply() {
	active, ok := r.store.ActiveConversation()
	if !ok || len(active.Messages) == 0 {
		return
	}
	r.printMessage(active.Messages[len(active.Messages)-1])
}

func (r *repl) printMessage(m models.Message) {
	if m.Role == models.RoleUser {
		fmt.Fprintf(r.out, "you: %s\n", m.Content)
		return
	}
	fmt.Fprint(r.out, r.render.Render(m.Content))
}

func (r *repl) printGoal() {
	g := r.store.ActiveGoal()
	if g == nil {
		fmt.Fprintln(r.out, "No active goal.")
		return
	}
	fmt.Fprintf(r.out, "%s [%s]\n", g.Title, g.Status)
	if g.Description != "" {
		fmt.Fprintln(r.out, g.Description)
	}
	if g.ProgressSummary != "" {
		fmt.Fprintf(r.out, "Progress: %s\n", g.ProgressSummary)
	}
	if len(g.Tasks) > 0 {
		fmt.Fprintf(r.out, "Tasks (%d/%d done):\n", g.CountTasks(models.StatusCompleted), len(g.Tasks))
		for _, t := range g.Tasks {
			box := "[ ]"
			if t.Status == models.StatusCompleted {
				box = "[x]"
			}
			fmt.Fprintf(r.out, "  %s %s %s\n", box, t.ID, t.Description)
		}
	}
}
