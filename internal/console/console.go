// Package console implements the operator console: a line-oriented control
// loop on the host terminal that edits the authorization list while the bot
// runs.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"server_monitor_bot/internal/domain"
	"server_monitor_bot/internal/logging"
)

const (
	prompt        = ">> "
	clearSequence = "\033[H\033[2J"
)

// ErrMalformedInput marks a verb with a missing or non-integer argument.
var ErrMalformedInput = errors.New("malformed input")

// AccessStore is the authorization store the console mutates.
type AccessStore interface {
	Add(userID int64)
	AddAdmin(userID int64)
	Remove(userID int64) bool
	List() []domain.AccessEntry
}

// NameLookup resolves registered display names.
type NameLookup interface {
	Lookup(userID int64) (string, bool)
}

// Console reads commands from in and writes results to out.
type Console struct {
	access AccessStore
	names  NameLookup
	in     io.Reader
	out    io.Writer
	logger *logrus.Entry
}

// New constructs a Console. names may be nil.
func New(access AccessStore, names NameLookup, in io.Reader, out io.Writer, logger *logrus.Entry) (*Console, error) {
	if access == nil {
		return nil, errors.New("access store is required")
	}
	if in == nil || out == nil {
		return nil, errors.New("console input and output are required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	return &Console{
		access: access,
		names:  names,
		in:     in,
		out:    out,
		logger: logger,
	}, nil
}

// Run prints the banner and processes lines until exit, end of input or
// context cancellation. It never terminates the process.
func (c *Console) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithField("event", "console_start").Info("operator console ready")
	fmt.Fprintln(c.out, "\n🖥 Terminal control ready")
	c.printHelp()

	scanner := bufio.NewScanner(c.in)
	for {
		if ctx.Err() != nil {
			return nil
		}

		fmt.Fprint(c.out, prompt)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read console input: %w", err)
			}
			c.logger.WithField("event", "console_eof").Info("console input closed")
			return nil
		}

		if ctx.Err() != nil {
			return nil
		}

		if stop := c.Execute(scanner.Text()); stop {
			c.logger.WithField("event", "console_exit").Info("operator console exited")
			return nil
		}
	}
}

// Execute evaluates a single line and reports whether the loop should stop.
func (c *Console) Execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "add", "addadmin", "remove":
		id, err := parseID(args)
		if err != nil {
			fmt.Fprintf(c.out, "❌ Use: %s <user_id>\n", verb)
			return false
		}
		c.mutate(verb, id)
	case "list":
		c.printList()
	case "clear":
		fmt.Fprint(c.out, clearSequence)
	case "help":
		c.printHelp()
	case "exit":
		fmt.Fprintln(c.out, "👋 Console closed. The bot keeps running.")
		return true
	default:
		fmt.Fprintf(c.out, "❌ Unknown command: %s (type help)\n", verb)
	}

	return false
}

func (c *Console) mutate(verb string, id int64) {
	switch verb {
	case "add":
		c.access.Add(id)
		fmt.Fprintf(c.out, "✅ Added %d\n", id)
	case "addadmin":
		c.access.AddAdmin(id)
		fmt.Fprintf(c.out, "✅ Added admin %d\n", id)
	case "remove":
		if !c.access.Remove(id) {
			fmt.Fprintf(c.out, "❌ User %d not found\n", id)
			return
		}
		fmt.Fprintf(c.out, "🗑 Removed %d\n", id)
	}

	c.logger.WithFields(logging.Fields{
		"event":   "console_" + verb,
		"user_id": id,
	}).Info("authorization list changed from console")
}

func (c *Console) printList() {
	entries := c.access.List()
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "No authorized users.")
		return
	}

	fmt.Fprintf(c.out, "Authorized users (%d):\n", len(entries))
	for _, entry := range entries {
		role := "user"
		if entry.Admin {
			role = "admin"
		}
		line := fmt.Sprintf("  %d\t%s", entry.UserID, role)
		if c.names != nil {
			if name, ok := c.names.Lookup(entry.UserID); ok {
				line += "\t" + name
			}
		}
		fmt.Fprintln(c.out, line)
	}
}

func (c *Console) printHelp() {
	fmt.Fprint(c.out, `Commands:
  add <user_id>       authorize a user
  addadmin <user_id>  authorize a user as admin
  remove <user_id>    revoke a user (and admin)
  list                show authorized users
  clear               clear the screen
  help                show this help
  exit                close the console (the bot keeps running)
`)
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, ErrMalformedInput
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: %q is not a user id", ErrMalformedInput, args[0])
	}

	return id, nil
}
