package commands

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"server_monitor_bot/internal/domain"
	"server_monitor_bot/internal/hostinfo"
	"server_monitor_bot/internal/system"
)

// Telegram rejects messages over 4096 characters; leave room for the header.
const maxLogChars = 3800

func formatStatus(st hostinfo.Status) string {
	var b strings.Builder
	b.WriteString("🖥 Server Status\n\n")
	if st.Hostname != "" {
		fmt.Fprintf(&b, "Host: %s\n", st.Hostname)
	}
	if st.OS != "" {
		fmt.Fprintf(&b, "OS: %s %s\n", st.OS, st.Kernel)
	}
	fmt.Fprintf(&b, "CPU: %.1f%%\n", st.CPUPercent)
	fmt.Fprintf(&b, "RAM: %.1f%%\n", st.RAMPercent)
	fmt.Fprintf(&b, "Disk: %.1f%%\n", st.DiskPercent)
	fmt.Fprintf(&b, "Load: %.2f %.2f %.2f\n", st.Load1, st.Load5, st.Load15)
	fmt.Fprintf(&b, "Uptime: %s", formatUptime(st.Uptime))
	return b.String()
}

func formatUptime(d time.Duration) string {
	if d <= 0 {
		return "unknown"
	}

	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func formatProcesses(report hostinfo.ProcessReport) string {
	var b strings.Builder
	b.WriteString("🧠 System Overview\n\n🔥 Top CPU:\n")
	for _, p := range report.TopCPU {
		fmt.Fprintf(&b, "%s - %.1f%%\n", p.Name, p.CPUPercent)
	}
	b.WriteString("\n💾 Top RAM:\n")
	for _, p := range report.TopRAM {
		fmt.Fprintf(&b, "%s - %.1f%%\n", p.Name, p.MemPercent)
	}
	fmt.Fprintf(&b, "\n📦 Total Processes: %d", report.Total)
	return b.String()
}

func formatNetwork(stats hostinfo.NetworkStats) string {
	return fmt.Sprintf("🌐 Network Overview\n\nConnections: %d\nUpload: %.2f MB\nDownload: %.2f MB",
		stats.Connections,
		float64(stats.BytesSent)/1e6,
		float64(stats.BytesRecv)/1e6,
	)
}

func formatStorage(stats hostinfo.StorageStats) string {
	return fmt.Sprintf("💾 Storage (%s)\n\nTotal: %.2f GB\nUsed: %.2f GB (%.1f%%)\nFree: %.2f GB",
		stats.Path,
		float64(stats.Total)/1e9,
		float64(stats.Used)/1e9,
		stats.UsedPercent,
		float64(stats.Free)/1e9,
	)
}

func formatServices(statuses []system.ServiceStatus) string {
	var b strings.Builder
	b.WriteString("⚙ Services\n\n")
	for i, st := range statuses {
		mark := "🔴"
		if st.Active {
			mark = "🟢"
		}
		fmt.Fprintf(&b, "%s: %s", st.Name, mark)
		if i < len(statuses)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func formatLog(path string, lines []string) string {
	if len(lines) == 0 {
		return fmt.Sprintf("📜 %s is empty.", path)
	}

	body := strings.Join(lines, "\n")
	if len(body) > maxLogChars {
		cut := len(body) - maxLogChars
		for cut < len(body) && !utf8.RuneStart(body[cut]) {
			cut++
		}
		body = "..." + body[cut:]
	}
	return fmt.Sprintf("📜 Last %d lines of %s\n\n%s", len(lines), path, body)
}

type nameLookup interface {
	Lookup(userID int64) (string, bool)
	List() []domain.Registration
}

func formatUsers(entries []domain.AccessEntry, names nameLookup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👥 Authorized users (%d)\n", len(entries))

	authorized := make(map[int64]struct{}, len(entries))
	for _, entry := range entries {
		authorized[entry.UserID] = struct{}{}
		fmt.Fprintf(&b, "\n%d", entry.UserID)
		if entry.Admin {
			b.WriteString(" ⭐ admin")
		}
		if name, ok := names.Lookup(entry.UserID); ok {
			fmt.Fprintf(&b, " - %s", name)
		}
	}

	var pending []domain.Registration
	for _, reg := range names.List() {
		if _, ok := authorized[reg.UserID]; !ok {
			pending = append(pending, reg)
		}
	}
	if len(pending) > 0 {
		fmt.Fprintf(&b, "\n\n📝 Registered, not authorized (%d)\n", len(pending))
		for _, reg := range pending {
			fmt.Fprintf(&b, "\n%d - %s", reg.UserID, reg.DisplayName)
		}
	}

	return b.String()
}
