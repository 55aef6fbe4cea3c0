package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"ChatPane/models"
	"ChatPane/pkg/chat"
	"ChatPane/pkg/identity"
	"ChatPane/pkg/theme"

	"github.com/fatih/color"
)

const help = `Commands:
  /new              start a new conversation on the next message
  /list             list conversations (* marks the active one)
  /open <id>        make a conversation active
  /delete <id>      delete a conversation
  /audio <file>     send a voice recording
  /theme [light|dark]
  /login, /logout
  /quit
Anything else is sent to the active conversation.`

type repl struct {
	out      io.Writer
	registry *chat.Registry
	users    *identity.Provider
	prefs    *theme.Preferences
	session  *chat.Session

	userC, modelC, infoC, errC *color.Color
}

func newREPL(out io.Writer, registry *chat.Registry, users *identity.Provider, prefs *theme.Preferences) *repl {
	return &repl{
		out:      out,
		registry: registry,
		users:    users,
		prefs:    prefs,
		userC:    color.New(color.FgCyan),
		modelC:   color.New(color.FgGreen),
		infoC:    color.New(color.FgYellow),
		errC:     color.New(color.FgRed),
	}
}

func (r *repl) login(ctx context.Context) error {
	id, err := r.users.Login(ctx)
	if err != nil {
		return err
	}
	s, err := r.registry.Open(ctx, id)
	if err != nil {
		return err
	}
	r.session = s
	r.infoC.Fprintf(r.out, "Signed in as %s <%s>, %d conversations.\n", id.Name, id.Email, s.Store().Len())
	return nil
}

func (r *repl) logout(ctx context.Context) {
	if r.session == nil {
		return
	}
	r.registry.Close(r.session.Identity.ID)
	if err := r.users.Logout(ctx); err != nil {
		r.errC.Fprintf(r.out, "forget identity: %v\n", err)
	}
	r.session = nil
	r.infoC.Fprintln(r.out, "Signed out. Use /login to sign in again.")
}

// prompt reflects the active conversation.
func (r *repl) prompt() string {
	if r.session == nil {
		return "signed out> "
	}
	if conv, ok := r.session.Store().Active(); ok {
		return fmt.Sprintf("[%s]> ", conv.Title)
	}
	return "new> "
}

// handle runs one input line and reports whether to quit.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, help)
		return false
	case "/login":
		if r.session != nil {
			r.infoC.Fprintln(r.out, "Already signed in.")
		} else if err := r.login(ctx); err != nil {
			r.errC.Fprintf(r.out, "login: %v\n", err)
		}
		return false
	case "/theme":
		r.theme(ctx, arg)
		return false
	}

	if r.session == nil {
		r.errC.Fprintln(r.out, "Not signed in. Use /login.")
		return false
	}
	store := r.session.Store()

	switch cmd {
	case "/logout":
		r.logout(ctx)
	case "/new":
		_ = store.SetActive("")
		r.infoC.Fprintln(r.out, "Next message starts a new conversation.")
	case "/list":
		r.list()
	case "/open":
		if err := store.SetActive(arg); err != nil {
			r.report(err)
			return false
		}
		r.show(arg)
	case "/delete":
		if err := store.Delete(arg); err != nil {
			r.report(err)
			return false
		}
		r.infoC.Fprintln(r.out, "Deleted.")
	case "/audio":
		r.sendAudio(ctx, arg)
	default:
		if strings.HasPrefix(cmd, "/") {
			r.errC.Fprintf(r.out, "unknown command %s, try /help\n", cmd)
			return false
		}
		r.sendText(ctx, line)
	}
	return false
}

func (r *repl) theme(ctx context.Context, arg string) {
	if arg == "" {
		t, err := r.prefs.Get(ctx)
		if err != nil {
			r.report(err)
		}
		r.infoC.Fprintf(r.out, "Theme: %s\n", t)
		return
	}
	if err := r.prefs.Set(ctx, models.Theme(arg)); err != nil {
		r.report(err)
		return
	}
	r.infoC.Fprintf(r.out, "Theme set to %s\n", arg)
}

func (r *repl) list() {
	store := r.session.Store()
	convs := store.List()
	if len(convs) == 0 {
		r.infoC.Fprintln(r.out, "No conversations yet.")
		return
	}
	active := store.ActiveID()
	for _, c := range convs {
		mark := " "
		if c.ID == active {
			mark = "*"
		}
		fmt.Fprintf(r.out, "%s %s  %s (%d messages)\n", mark, c.ID, c.Title, len(c.Messages))
	}
}

func (r *repl) show(id string) {
	conv, err := r.session.Store().Get(id)
	if err != nil {
		r.report(err)
		return
	}
	for _, m := range conv.Messages {
		if m.Role == models.RoleUser {
			r.userC.Fprintf(r.out, "you: %s\n", m.Content)
		} else {
			r.modelC.Fprintf(r.out, "model: %s\n", m.Content)
		}
	}
}

func (r *repl) hooks() chat.Hooks {
	return chat.Hooks{
		Transcript: func(text string) { r.userC.Fprintf(r.out, "you said: %s\n", text) },
		Delta:      func(fragment string) { r.modelC.Fprint(r.out, fragment) },
	}
}

func (r *repl) sendText(ctx context.Context, text string) {
	res, err := r.session.SendText(ctx, text, r.hooks())
	r.finish(res, err)
}

func (r *repl) sendAudio(ctx context.Context, path string) {
	if path == "" {
		r.errC.Fprintln(r.out, "usage: /audio <file>")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		r.report(err)
		return
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	r.infoC.Fprintln(r.out, chat.TranscribingLabel)
	res, err := r.session.SendAudio(ctx, models.Audio{Data: data, MIMEType: mimeType}, r.hooks())
	r.finish(res, err)
}

func (r *repl) finish(res chat.SendResult, err error) {
	if err != nil {
		r.report(err)
		return
	}
	if res.TranscriptionErr != nil {
		r.errC.Fprintln(r.out, chat.TranscriptionErrorMessage)
		return
	}
	fmt.Fprintln(r.out)
	if res.Outcome.State == chat.StateFailed {
		r.errC.Fprintln(r.out, chat.StreamErrorMessage)
	}
}

func (r *repl) report(err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		r.errC.Fprintln(r.out, "No such conversation.")
	case errors.Is(err, chat.ErrEmptyMessage):
		r.errC.Fprintln(r.out, "Nothing to send.")
	default:
		r.errC.Fprintf(r.out, "error: %v\n", err)
	}
}
