// Package commands defines the bot's command table and the handlers behind it.
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"server_monitor_bot/internal/domain"
	"server_monitor_bot/internal/hostinfo"
	"server_monitor_bot/internal/logging"
	"server_monitor_bot/internal/registration"
	"server_monitor_bot/internal/router"
	"server_monitor_bot/internal/system"
)

const defaultTopProcesses = 3

// MetricsProvider supplies host metrics. Each handler makes exactly one call.
type MetricsProvider interface {
	Status(ctx context.Context) (hostinfo.Status, error)
	TopProcesses(ctx context.Context, n int) (hostinfo.ProcessReport, error)
	Network(ctx context.Context) (hostinfo.NetworkStats, error)
	Storage(ctx context.Context, path string) (hostinfo.StorageStats, error)
}

// Executor runs the fixed OS commands.
type Executor interface {
	Reboot(ctx context.Context) error
	Shutdown(ctx context.Context) error
	ServiceStatuses(ctx context.Context, units []string) []system.ServiceStatus
	TailFile(path string, n int) ([]string, error)
}

// AccessReader is the read side of the authorization store.
type AccessReader interface {
	Tier(userID int64) domain.Tier
	List() []domain.AccessEntry
}

// Registry is the registration store.
type Registry interface {
	Register(userID int64, name string) bool
	Lookup(userID int64) (string, bool)
	List() []domain.Registration
}

// Settings holds the fixed targets the handlers report on.
type Settings struct {
	Services     []string
	DiskPath     string
	LogPath      string
	LogLines     int
	TopProcesses int
}

// Set builds the command table and owns the handlers' collaborators.
type Set struct {
	metrics  MetricsProvider
	exec     Executor
	access   AccessReader
	registry Registry
	settings Settings
	logger   *logrus.Entry
}

// NewSet constructs a Set.
func NewSet(metrics MetricsProvider, exec Executor, access AccessReader, registry Registry, settings Settings, logger *logrus.Entry) *Set {
	if logger == nil {
		logger = logging.Logger()
	}
	if settings.TopProcesses <= 0 {
		settings.TopProcesses = defaultTopProcesses
	}
	if settings.LogLines <= 0 {
		settings.LogLines = 20
	}

	return &Set{
		metrics:  metrics,
		exec:     exec,
		access:   access,
		registry: registry,
		settings: settings,
		logger:   logger,
	}
}

// Commands returns the declarative command table in menu order.
func (s *Set) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Tier: domain.TierAuthorized, Description: "Show the menu", Handler: s.start},
		{Name: "id", Tier: domain.TierPublic, Description: "Show your Telegram ID", Handler: s.id},
		{Name: "ping", Tier: domain.TierAuthorized, Description: "Check the bot is alive", Handler: s.ping},
		{Name: "status", Tier: domain.TierAuthorized, Description: "Basic server stats", Handler: s.status},
		{Name: "system", Tier: domain.TierAuthorized, Description: "Top CPU/RAM processes", Handler: s.system},
		{Name: "network", Tier: domain.TierAuthorized, Description: "Network usage and connections", Handler: s.network},
		{Name: "storage", Tier: domain.TierAuthorized, Description: "Disk usage", Handler: s.storage},
		{Name: "services", Tier: domain.TierAuthorized, Description: "Check system services", Handler: s.services},
		{Name: "reboot", Tier: domain.TierAdmin, Description: "Reboot the server", Handler: s.reboot},
		{Name: "shutdown", Tier: domain.TierAdmin, Description: "Power the server off", Handler: s.shutdown},
		{Name: "log", Tier: domain.TierAdmin, Description: "Tail the bot log", Handler: s.tailLog},
		{Name: "list", Tier: domain.TierAdmin, Description: "List users", Handler: s.listUsers},
	}
}

// SaveContact registers free text from a caller as their display name.
func (s *Set) SaveContact(_ context.Context, callerID int64, text string) router.Response {
	name := registration.NormalizeName(text)
	if name == "" {
		return router.Response{Text: "✏️ Send your name to register."}
	}

	if !s.registry.Register(callerID, name) {
		existing, _ := s.registry.Lookup(callerID)
		return router.Response{Text: fmt.Sprintf("ℹ️ Already registered as %s.", existing)}
	}

	s.logger.WithFields(logging.Fields{
		"event":   "contact_registered",
		"user_id": callerID,
	}).Info("registered caller name")

	return router.Response{Text: fmt.Sprintf("✅ Saved as %s.\nYour ID: %d", name, callerID)}
}

func (s *Set) start(_ context.Context, req router.Request) router.Response {
	tier := s.access.Tier(req.CallerID)

	var b strings.Builder
	b.WriteString("🚀 Server Bot Active\n\nAvailable commands:\n")
	for _, cmd := range s.Commands() {
		if cmd.Name == "start" || !tier.Allows(cmd.Tier) {
			continue
		}
		fmt.Fprintf(&b, "/%s - %s\n", cmd.Name, cmd.Description)
	}

	buttons := [][]router.Button{
		{{Label: "📊 Status", Data: "status"}, {Label: "🧠 System", Data: "system"}},
		{{Label: "🌐 Network", Data: "network"}, {Label: "💾 Storage", Data: "storage"}},
		{{Label: "⚙ Services", Data: "services"}, {Label: "🏓 Ping", Data: "ping"}},
	}
	if tier.Allows(domain.TierAdmin) {
		buttons = append(buttons,
			[]router.Button{{Label: "📜 Log", Data: "log"}, {Label: "👥 Users", Data: "list"}},
			[]router.Button{{Label: "🔄 Reboot", Data: "reboot"}, {Label: "⏻ Shutdown", Data: "shutdown"}},
		)
	}

	return router.Response{Text: strings.TrimRight(b.String(), "\n"), Buttons: buttons}
}

func (s *Set) id(_ context.Context, req router.Request) router.Response {
	return router.Response{Text: fmt.Sprintf("🆔 Your ID: %d", req.CallerID)}
}

func (s *Set) ping(context.Context, router.Request) router.Response {
	return router.Response{Text: "🏓 Pong!"}
}

func (s *Set) status(ctx context.Context, _ router.Request) router.Response {
	st, err := s.metrics.Status(ctx)
	if err != nil {
		return s.unavailable("Status", err)
	}
	return router.Response{Text: formatStatus(st)}
}

func (s *Set) system(ctx context.Context, _ router.Request) router.Response {
	report, err := s.metrics.TopProcesses(ctx, s.settings.TopProcesses)
	if err != nil {
		return s.unavailable("Process list", err)
	}
	return router.Response{Text: formatProcesses(report)}
}

func (s *Set) network(ctx context.Context, _ router.Request) router.Response {
	stats, err := s.metrics.Network(ctx)
	if err != nil {
		return s.unavailable("Network stats", err)
	}
	return router.Response{Text: formatNetwork(stats)}
}

func (s *Set) storage(ctx context.Context, _ router.Request) router.Response {
	stats, err := s.metrics.Storage(ctx, s.settings.DiskPath)
	if err != nil {
		return s.unavailable("Storage stats", err)
	}
	return router.Response{Text: formatStorage(stats)}
}

func (s *Set) services(ctx context.Context, _ router.Request) router.Response {
	if len(s.settings.Services) == 0 {
		return router.Response{Text: "⚙ Services\n\nNo services configured."}
	}
	return router.Response{Text: formatServices(s.exec.ServiceStatuses(ctx, s.settings.Services))}
}

func (s *Set) reboot(ctx context.Context, req router.Request) router.Response {
	s.logger.WithFields(logging.Fields{"event": "reboot_requested", "user_id": req.CallerID}).Warn("reboot requested")
	if err := s.exec.Reboot(ctx); err != nil {
		return s.unavailable("Reboot", err)
	}
	return router.Response{Text: "🔄 Rebooting server..."}
}

func (s *Set) shutdown(ctx context.Context, req router.Request) router.Response {
	s.logger.WithFields(logging.Fields{"event": "shutdown_requested", "user_id": req.CallerID}).Warn("shutdown requested")
	if err := s.exec.Shutdown(ctx); err != nil {
		return s.unavailable("Shutdown", err)
	}
	return router.Response{Text: "⏻ Shutting down server..."}
}

func (s *Set) tailLog(context.Context, router.Request) router.Response {
	lines, err := s.exec.TailFile(s.settings.LogPath, s.settings.LogLines)
	if err != nil {
		return s.unavailable("Log", err)
	}
	return router.Response{Text: formatLog(s.settings.LogPath, lines)}
}

func (s *Set) listUsers(context.Context, router.Request) router.Response {
	return router.Response{Text: formatUsers(s.access.List(), s.registry)}
}

func (s *Set) unavailable(what string, err error) router.Response {
	s.logger.WithFields(logging.Fields{
		"event":    "resource_unavailable",
		"resource": what,
	}).WithError(err).Warn("handler resource unavailable")
	return router.Response{Text: fmt.Sprintf("⚠️ %s unavailable: %v", what, err)}
}
