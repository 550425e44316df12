package telegram

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/suspectuso/proxipay/internal/cart"
	"github.com/suspectuso/proxipay/internal/composer"
	"github.com/suspectuso/proxipay/internal/presence"
	"github.com/suspectuso/proxipay/internal/storage"
)

const maxRosterRows = 10

func MainMenuText(account string) string {
	if account == "" {
		return "<b>ProxiPay</b>\n\n" +
			"No account identifier is set.\n" +
			"Send <code>/id 12345</code> to set it."
	}
	return fmt.Sprintf(
		"<b>ProxiPay</b>\n\n"+
			"Account: <code>%s</code>\n\n"+
			"Broadcast to let nearby requesters find you, or look for nearby payers.",
		html.EscapeString(account),
	)
}

func statusLine(st presence.Status) string {
	switch st.State {
	case presence.StateError:
		return "⚠️ " + st.Reason.Message()
	case presence.StateBroadcasting:
		return "📡 Broadcasting"
	case presence.StateScanning:
		return "🔎 Scanning"
	case presence.StateStarting:
		return "⏳ Starting…"
	case presence.StateStopped:
		return "⏹ Stopped"
	default:
		return "Idle"
	}
}

func BroadcastText(st presence.Status, account string) string {
	var sb strings.Builder
	sb.WriteString("<b>Broadcast</b>\n\n")
	sb.WriteString(statusLine(st))
	if st.State == presence.StateBroadcasting {
		fmt.Fprintf(&sb, "\n\nNearby requesters can see <code>%s</code>.", html.EscapeString(account))
	}
	return sb.String()
}

func NearbyText(st presence.Status, cands []presence.Candidate) string {
	var sb strings.Builder
	sb.WriteString("<b>Nearby</b>\n")
	sb.WriteString(statusLine(st))
	sb.WriteString("\n\n")

	if len(cands) == 0 {
		sb.WriteString("Nobody nearby yet.")
		return sb.String()
	}
	for i, c := range cands {
		if i == maxRosterRows {
			fmt.Fprintf(&sb, "…and %d more", len(cands)-maxRosterRows)
			break
		}
		fmt.Fprintf(&sb, "%d. <b>%s</b> · %s (%d dBm)\n", i+1, html.EscapeString(c.Label()), c.Proximity(), c.SignalStrength)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func KeypadText(c presence.Candidate, display string, st composer.State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Request from %s</b>\n\n", html.EscapeString(c.Label()))
	fmt.Fprintf(&sb, "<code>%s</code>", display)

	switch st.Phase {
	case composer.PhaseProcessing:
		sb.WriteString("\n\n⏳ Sending…")
	case composer.PhaseSuccess:
		sb.WriteString("\n\n✅ " + html.EscapeString(st.Message))
	case composer.PhaseError:
		sb.WriteString("\n\n❌ " + html.EscapeString(st.Message))
	}
	return sb.String()
}

func CartText(lines []cart.Line, total decimal.Decimal) string {
	if len(lines) == 0 {
		return "<b>Cart</b>\n\nThe cart is empty."
	}

	var sb strings.Builder
	sb.WriteString("<b>Cart</b>\n\n")
	for _, l := range lines {
		fmt.Fprintf(&sb, "• %s × %d = %s\n", html.EscapeString(l.Name), l.Quantity, l.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(&sb, "\nTotal: <b>%s</b>", total.StringFixed(2))
	return sb.String()
}

func ProfileText(account string, recent []storage.PaymentRequest) string {
	var sb strings.Builder
	sb.WriteString("<b>Profile</b>\n\n")
	if account == "" {
		sb.WriteString("Account: not set")
	} else {
		fmt.Fprintf(&sb, "Account: <code>%s</code>", html.EscapeString(account))
	}

	if len(recent) == 0 {
		sb.WriteString("\n\nNo requests sent yet.")
		return sb.String()
	}
	sb.WriteString("\n\nRecent requests:\n")
	for _, pr := range recent {
		mark := "✅"
		if pr.Status != storage.StatusSent {
			mark = "❌"
		}
		fmt.Fprintf(&sb, "%s %s → %s · %s\n",
			mark, pr.CreatedAt.Format("02 Jan 15:04"), html.EscapeString(pr.Payer), pr.Amount.StringFixed(2))
	}
	return strings.TrimRight(sb.String(), "\n")
}
