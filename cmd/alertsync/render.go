package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nhle/commodity-alerts/internal/model"
	"github.com/nhle/commodity-alerts/internal/sync"
	"github.com/nhle/commodity-alerts/internal/theme"
)

const timeLayout = "2006-01-02 15:04"

// renderSnapshot prints a snapshot as a notification list, or its
// placeholder message when there is nothing to list.
func renderSnapshot(w io.Writer, snap sync.Snapshot, unreadOnly bool) {
	header := fmt.Sprintf("Notifications (%d unread)", snap.UnreadCount)
	if snap.Stale {
		header += " [offline]"
	}
	fmt.Fprintln(w, theme.HeaderStyle.Render(header))

	switch snap.State {
	case sync.StateError:
		fmt.Fprintln(w, theme.ErrorStyle.Render(snap.Message()))
		return
	case sync.StateEmpty, sync.StateLoading:
		fmt.Fprintln(w, theme.HelpStyle.Render(sync.EmptyMessage))
		return
	}

	renderNotifications(w, snap.Notifications, unreadOnly)
}

func renderNotifications(w io.Writer, list []model.Notification, unreadOnly bool) {
	shown := 0
	for _, n := range list {
		if unreadOnly && n.IsRead {
			continue
		}
		shown++
		fmt.Fprintln(w, notificationLine(n))
	}
	if shown == 0 {
		fmt.Fprintln(w, theme.HelpStyle.Render(sync.EmptyMessage))
	}
}

func notificationLine(n model.Notification) string {
	title := theme.UnreadStyle.Render("* " + n.Title)
	if n.IsRead {
		title = theme.ReadStyle.Render("  " + n.Title)
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString(theme.TypeStyle(n.Type).Render(string(n.Type)))
	b.WriteString(theme.SeverityStyle(n.Severity).Render(string(n.Severity)))
	if n.Commodity != "" {
		b.WriteString(" " + n.Commodity)
	}
	b.WriteString(theme.HelpStyle.Render(fmt.Sprintf("  %s  #%s", formatTime(n.CreatedAt), n.ID)))
	if n.Body != "" {
		b.WriteString("\n    " + n.Body)
	}
	return b.String()
}

func renderAlerts(w io.Writer, alerts []model.MarketAlert) {
	fmt.Fprintln(w, theme.HeaderStyle.Render(fmt.Sprintf("Market alerts (%d)", len(alerts))))
	if len(alerts) == 0 {
		fmt.Fprintln(w, theme.HelpStyle.Render("No market alerts"))
		return
	}

	for _, a := range alerts {
		var b strings.Builder
		b.WriteString(theme.SeverityStyle(a.Severity).Render(fmt.Sprintf("%-6s", a.Severity)))
		b.WriteString(" " + a.Commodity)
		if a.ChangePercent != nil {
			b.WriteString(" " + theme.ChangeStyle(*a.ChangePercent).Render(fmt.Sprintf("%+.2f%%", *a.ChangePercent)))
		}
		if a.CurrentPrice != nil {
			b.WriteString(fmt.Sprintf(" @ %.2f", *a.CurrentPrice))
		}
		b.WriteString("  " + a.Message)
		b.WriteString(theme.HelpStyle.Render("  " + formatTime(a.CreatedAt)))
		fmt.Fprintln(w, b.String())
	}
}

func renderPreferences(w io.Writer, p model.AlertPreferences) {
	fmt.Fprintln(w, theme.HeaderStyle.Render("Alert preferences"))
	fmt.Fprintf(w, "  commodities: %s\n", joinOrNone(p.Commodities))
	fmt.Fprintf(w, "  regions:     %s\n", joinOrNone(p.Regions))
	fmt.Fprintf(w, "  currencies:  %s\n", joinOrNone(p.Currencies))
	fmt.Fprintf(w, "  frequency:   %s\n", p.Frequency)
	fmt.Fprintf(w, "  threshold:   %s\n", theme.SeverityStyle(p.Threshold).Render(string(p.Threshold)))
	fmt.Fprintf(w, "  push:        %t\n", p.PushEnabled)
	fmt.Fprintf(w, "  email:       %t\n", p.EmailEnabled)
}

func joinOrNone(s model.StringSet) string {
	if len(s) == 0 {
		return "(all)"
	}
	return strings.Join(s, ", ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}
