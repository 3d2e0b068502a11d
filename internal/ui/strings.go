package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/five82/tables/internal/tables"
)

// truncate shortens a string to the given limit, adding ellipsis if needed.
func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

// humanizeDuration renders d compactly: 45s, 2m05s, 1h02m.
func humanizeDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

// errorText renders an error for the UI without endpoint prefixes.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	var te *tables.Error
	if errors.As(err, &te) {
		switch te.Kind {
		case tables.KindTimeout:
			return "The server did not respond in time"
		case tables.KindNetwork:
			return "Could not connect to the server"
		}
		if te.Message != "" {
			return te.Message
		}
		return te.Kind.String()
	}
	return err.Error()
}

// loginErrorText maps a failed login to the message shown under the form.
func loginErrorText(err error) string {
	switch tables.KindOf(err) {
	case tables.KindRejected, tables.KindAuthExpired:
		var te *tables.Error
		if errors.As(err, &te) && te.Message != "" {
			return te.Message
		}
		return "Invalid credentials"
	case tables.KindValidation:
		return "Enter a username and password"
	}
	return errorText(err)
}
