package telegram

import (
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/suspectuso/proxipay/internal/cart"
	"github.com/suspectuso/proxipay/internal/presence"
	"github.com/suspectuso/proxipay/internal/storage"
)

// Callback data.
const (
	cbMenu          = "menu"
	cbBroadcast     = "bcast"
	cbBroadcastStop = "bcast_stop"
	cbNearby        = "scan"
	cbNearbyStop    = "scan_stop"
	cbPick          = "pick:"
	cbKey           = "kp:"
	cbSend          = "kp_send"
	cbKeypadBack    = "kp_back"
	cbCart          = "cart"
	cbCartAdd       = "add:"
	cbCartRemove    = "rm:"
	cbCartClear     = "cart_clear"
	cbCartCharge    = "cart_charge"
	cbProfile       = "profile"
)

// answersWithAlert reports whether the callback may end in an alert, in
// which case its handler answers the query itself.
func answersWithAlert(data string) bool {
	return data == cbSend || strings.HasPrefix(data, cbPick) || strings.HasPrefix(data, cbCartAdd)
}

// MainKeyboard returns the main menu keyboard
func MainKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "📡 Broadcast", CallbackData: cbBroadcast},
				{Text: "🔎 Nearby", CallbackData: cbNearby},
			},
			{
				{Text: "🛒 Cart", CallbackData: cbCart},
				{Text: "👤 Profile", CallbackData: cbProfile},
			},
		},
	}
}

func BroadcastKeyboard(st presence.Status) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	if st.State == presence.StateBroadcasting || st.State == presence.StateStarting {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "⏹ Stop", CallbackData: cbBroadcastStop},
		})
	} else {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "🔄 Retry", CallbackData: cbBroadcast},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "⬅️ Back", CallbackData: cbMenu},
	})
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// NearbyKeyboard has one button per candidate, closest first.
func NearbyKeyboard(cands []presence.Candidate) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	for i, c := range cands {
		if i == maxRosterRows {
			break
		}
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: c.Label() + " · " + c.Proximity().String(), CallbackData: cbPick + c.Identifier},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "🔄 Refresh", CallbackData: cbNearby},
		{Text: "✖️ Close", CallbackData: cbNearbyStop},
	})
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// KeypadKeyboard is the amount entry pad. Send is only offered when the
// draft can be submitted.
func KeypadKeyboard(canSubmit, processing bool) *models.InlineKeyboardMarkup {
	key := func(text, k string) models.InlineKeyboardButton {
		return models.InlineKeyboardButton{Text: text, CallbackData: cbKey + k}
	}
	rows := [][]models.InlineKeyboardButton{
		{key("1", "1"), key("2", "2"), key("3", "3")},
		{key("4", "4"), key("5", "5"), key("6", "6")},
		{key("7", "7"), key("8", "8"), key("9", "9")},
		{key(".", "."), key("0", "0"), key("⌫", "back")},
		{key("C", "clear")},
	}

	switch {
	case processing:
		rows = append(rows, []models.InlineKeyboardButton{{Text: "⏳ Sending…", CallbackData: cbSend}})
	case canSubmit:
		rows = append(rows, []models.InlineKeyboardButton{{Text: "✅ Send request", CallbackData: cbSend}})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "⬅️ Back", CallbackData: cbKeypadBack},
	})
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// CartKeyboard lists catalog products with add/remove buttons.
func CartKeyboard(products []storage.Product, lines []cart.Line) *models.InlineKeyboardMarkup {
	inCart := make(map[string]int, len(lines))
	for _, l := range lines {
		inCart[l.ProductID] = l.Quantity
	}

	var rows [][]models.InlineKeyboardButton
	for _, p := range products {
		row := []models.InlineKeyboardButton{
			{Text: "➕ " + p.Name + " " + p.UnitPrice.StringFixed(2), CallbackData: cbCartAdd + p.ID},
		}
		if inCart[p.ID] > 0 {
			row = append(row, models.InlineKeyboardButton{Text: "➖", CallbackData: cbCartRemove + p.ID})
		}
		rows = append(rows, row)
	}

	if len(lines) > 0 {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "💳 Charge nearby", CallbackData: cbCartCharge},
			{Text: "🗑 Clear", CallbackData: cbCartClear},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "⬅️ Back", CallbackData: cbMenu},
	})
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// BackKeyboard returns a simple back button
func BackKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "⬅️ Back", CallbackData: cbMenu},
			},
		},
	}
}
