// Package router gates chat commands by access tier and dispatches them to
// their handlers.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"server_monitor_bot/internal/domain"
	"server_monitor_bot/internal/logging"
	"server_monitor_bot/internal/metrics"
)

// Source names the entry surface an invocation arrived on.
type Source string

const (
	SourceCommand Source = "command"
	SourceButton  Source = "button"
)

const (
	unknownCommandText = "❓ Unknown command. Send /start for the command list."
	// unknownCommandLabel replaces caller-supplied names in metric labels.
	unknownCommandLabel = "unknown"
	handlerFailedText  = "⚠️ Command failed. The error was logged."
)

// Request is a single inbound invocation.
type Request struct {
	CallerID int64
	ChatID   int64
	Command  string
	Source   Source
}

// Button is an inline button attached to a response.
type Button struct {
	Label string
	Data  string
}

// Response is the text (and optional button rows) sent back to the caller.
type Response struct {
	Text    string
	Buttons [][]Button
}

// HandlerFunc produces the response for an allowed invocation.
type HandlerFunc func(ctx context.Context, req Request) Response

// Command binds a name to its required tier and handler.
type Command struct {
	Name        string
	Tier        domain.Tier
	Description string
	Handler     HandlerFunc
}

// Authorizer resolves the tier a caller holds.
type Authorizer interface {
	Tier(userID int64) domain.Tier
}

// Recorder receives one observation per dispatch.
type Recorder interface {
	ObserveCommand(command, source, outcome string)
}

// Router owns the command table. The tier check happens once, here, before
// any handler runs.
type Router struct {
	auth     Authorizer
	commands map[string]Command
	order    []Command
	logger   *logrus.Entry
	recorder Recorder
}

// Option customizes a Router.
type Option func(*Router)

// WithRecorder attaches a dispatch recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Router) {
		r.recorder = rec
	}
}

// New validates the command table and constructs a Router.
func New(auth Authorizer, commands []Command, logger *logrus.Entry, opts ...Option) (*Router, error) {
	if auth == nil {
		return nil, errors.New("authorizer is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	r := &Router{
		auth:     auth,
		commands: make(map[string]Command, len(commands)),
		order:    make([]Command, 0, len(commands)),
		logger:   logger,
	}

	for _, cmd := range commands {
		name := strings.ToLower(strings.TrimSpace(cmd.Name))
		if name == "" {
			return nil, errors.New("command name is required")
		}
		if cmd.Handler == nil {
			return nil, fmt.Errorf("command %q: handler is required", name)
		}
		if cmd.Tier < domain.TierPublic || cmd.Tier > domain.TierAdmin {
			return nil, fmt.Errorf("command %q: invalid tier %d", name, cmd.Tier)
		}
		if _, dup := r.commands[name]; dup {
			return nil, fmt.Errorf("command %q registered twice", name)
		}
		cmd.Name = name
		r.commands[name] = cmd
		r.order = append(r.order, cmd)
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Dispatch resolves, gates and runs a single invocation. It never panics and
// never returns an empty response.
func (r *Router) Dispatch(ctx context.Context, req Request) (resp Response) {
	name := strings.ToLower(strings.TrimSpace(req.Command))
	entry := r.logger.WithFields(logging.Context{
		UserID:  req.CallerID,
		ChatID:  req.ChatID,
		Command: name,
		Event:   "command_dispatch",
	}.Fields()).WithField("source", string(req.Source))

	cmd, ok := r.commands[name]
	if !ok {
		r.observe(unknownCommandLabel, req.Source, metrics.OutcomeUnknown)
		entry.Debug("unknown command")
		return Response{Text: unknownCommandText}
	}

	held := r.auth.Tier(req.CallerID)
	if !held.Allows(cmd.Tier) {
		r.observe(name, req.Source, metrics.OutcomeDenied)
		entry.WithFields(logging.Fields{
			"required_tier": cmd.Tier.String(),
			"held_tier":     held.String(),
		}).Warn("command denied")
		return Response{Text: DenialText(cmd.Tier, req.CallerID)}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.observe(name, req.Source, metrics.OutcomePanic)
			entry.WithField("panic", fmt.Sprint(rec)).Error("command handler panicked")
			resp = Response{Text: handlerFailedText}
		}
	}()

	resp = cmd.Handler(ctx, req)
	if strings.TrimSpace(resp.Text) == "" {
		resp.Text = "✅ Done."
	}

	r.observe(name, req.Source, metrics.OutcomeOK)
	entry.Info("command handled")
	return resp
}

// Commands returns, in registration order, the commands a caller holding
// tier may invoke.
func (r *Router) Commands(tier domain.Tier) []Command {
	out := make([]Command, 0, len(r.order))
	for _, cmd := range r.order {
		if tier.Allows(cmd.Tier) {
			out = append(out, cmd)
		}
	}
	return out
}

// Lookup returns the command registered under name.
func (r *Router) Lookup(name string) (Command, bool) {
	cmd, ok := r.commands[strings.ToLower(strings.TrimSpace(name))]
	return cmd, ok
}

func (r *Router) observe(command string, source Source, outcome string) {
	if r.recorder == nil {
		return
	}
	r.recorder.ObserveCommand(command, string(source), outcome)
}

// DenialText is the fixed reply for a caller lacking the required tier. It
// includes the caller id so they can send it to an admin.
func DenialText(required domain.Tier, callerID int64) string {
	if required == domain.TierAdmin {
		return fmt.Sprintf("⛔ Admin access required.\nYour ID: %d", callerID)
	}
	return fmt.Sprintf("🚫 Access denied.\nYour ID: %d", callerID)
}

// ParseCommand extracts the command name from chat text such as
// "/status", "/Status@MyBot" or "/log extra". It reports false for text that
// is not a command.
func ParseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}

	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", false
	}

	name := fields[0]
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	name = strings.ToLower(name)
	if name == "" {
		return "", false
	}

	return name, true
}
