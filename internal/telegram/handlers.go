package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/suspectuso/proxipay/internal/cart"
	"github.com/suspectuso/proxipay/internal/composer"
	"github.com/suspectuso/proxipay/internal/config"
	"github.com/suspectuso/proxipay/internal/presence"
	"github.com/suspectuso/proxipay/internal/storage"
)

const (
	rosterRefreshEvery = 2 * time.Second
	recentRequests     = 5
)

// Bot is the operator console.
type Bot struct {
	bot         *bot.Bot
	cfg         *config.Config
	storage     *storage.Storage
	broadcaster *presence.Broadcaster
	scanner     *presence.Scanner
	cart        *cart.Cart
	sessions    *SessionManager
	log         *slog.Logger

	mu  sync.RWMutex
	ctx context.Context // run context, parent of radio sessions
}

// New creates the console bot.
func New(
	cfg *config.Config,
	store *storage.Storage,
	broadcaster *presence.Broadcaster,
	scanner *presence.Scanner,
	sharedCart *cart.Cart,
	newComposer func() *composer.Composer,
	log *slog.Logger,
) (*Bot, error) {
	b := &Bot{
		cfg:         cfg,
		storage:     store,
		broadcaster: broadcaster,
		scanner:     scanner,
		cart:        sharedCart,
		sessions:    NewSessionManager(newComposer),
		log:         log,
		ctx:         context.Background(),
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
	}

	tgBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot

	// Register command handlers
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/id", bot.MatchTypePrefix, b.idHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/product", bot.MatchTypePrefix, b.productHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/delproduct", bot.MatchTypePrefix, b.deleteProductHandler)

	return b, nil
}

// Start polls for updates until ctx is cancelled, then releases the radio.
func (b *Bot) Start(ctx context.Context) {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	b.bot.Start(ctx)

	b.broadcaster.Stop()
	b.scanner.Stop()
}

func (b *Bot) runCtx() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ctx
}

// --- Commands ---

func (b *Bot) startHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || !b.authorized(ctx, update.Message.From, update.Message.Chat.ID) {
		return
	}

	chatID := update.Message.Chat.ID
	b.leaveRadio(chatID)

	msgID := b.sendMessage(ctx, chatID, MainMenuText(b.account(ctx)), MainKeyboard())
	b.sessions.Show(chatID, ScreenMenu, msgID)
}

func (b *Bot) idHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || !b.authorized(ctx, update.Message.From, update.Message.Chat.ID) {
		return
	}

	chatID := update.Message.Chat.ID
	id := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/id"))
	if id == "reset" {
		if err := b.storage.Delete(ctx, storage.KeyAccountIdentifier); err != nil {
			b.log.Error("reset account identifier", "error", err)
			b.sendMessage(ctx, chatID, "❌ Could not reset the identifier.", nil)
			return
		}
		b.log.Info("account identifier reset", "chat_id", chatID)
		msgID := b.sendMessage(ctx, chatID, MainMenuText(b.account(ctx)), MainKeyboard())
		b.sessions.Show(chatID, ScreenMenu, msgID)
		return
	}
	if !validIdentifier(id) {
		b.sendMessage(ctx, chatID,
			fmt.Sprintf("❌ The identifier must be 1 to %d digits. Example: <code>/id 12345</code>", presence.MaxIdentifierBytes),
			nil,
		)
		return
	}

	if err := b.storage.SetAccountIdentifier(ctx, id); err != nil {
		b.log.Error("set account identifier", "error", err)
		b.sendMessage(ctx, chatID, "❌ Could not save the identifier.", nil)
		return
	}
	b.log.Info("account identifier set", "chat_id", chatID, "identifier", id)

	msgID := b.sendMessage(ctx, chatID, MainMenuText(id), MainKeyboard())
	b.sessions.Show(chatID, ScreenMenu, msgID)
}

// productHandler handles "/product <id> <price> <name…>".
func (b *Bot) productHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || !b.authorized(ctx, update.Message.From, update.Message.Chat.ID) {
		return
	}

	chatID := update.Message.Chat.ID
	p, err := parseProductCommand(update.Message.Text)
	if err != nil {
		b.sendMessage(ctx, chatID,
			"❌ Usage: <code>/product tea 2.50 Green tea</code>",
			nil,
		)
		return
	}

	if err := b.storage.UpsertProduct(ctx, p); err != nil {
		b.log.Error("upsert product", "error", err)
		b.sendMessage(ctx, chatID, "❌ Could not save the product.", nil)
		return
	}

	b.sendMessage(ctx, chatID, fmt.Sprintf("✅ %s saved at %s", html.EscapeString(p.Name), p.UnitPrice.StringFixed(2)), BackKeyboard())
}

// deleteProductHandler handles "/delproduct <id>". The product also leaves the cart.
func (b *Bot) deleteProductHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || !b.authorized(ctx, update.Message.From, update.Message.Chat.ID) {
		return
	}

	chatID := update.Message.Chat.ID
	id, err := parseDeleteProductCommand(update.Message.Text)
	if err != nil {
		b.sendMessage(ctx, chatID, "❌ Usage: <code>/delproduct tea</code>", nil)
		return
	}

	err = b.storage.DeleteProduct(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.sendMessage(ctx, chatID, "❌ No such product.", nil)
		return
	case err != nil:
		b.log.Error("delete product", "product_id", id, "error", err)
		b.sendMessage(ctx, chatID, "❌ Could not delete the product.", nil)
		return
	}

	if err := b.cart.Remove(id); err != nil && !errors.Is(err, cart.ErrNotInCart) {
		b.log.Error("remove from cart", "product_id", id, "error", err)
	}
	b.sendMessage(ctx, chatID, fmt.Sprintf("🗑 %s removed from the catalog", html.EscapeString(id)), BackKeyboard())
}

func (b *Bot) defaultHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	if !b.authorized(ctx, update.Message.From, update.Message.Chat.ID) {
		return
	}
	b.sendMessage(ctx, update.Message.Chat.ID, "Use /start to open the menu.", nil)
}

// --- Callbacks ---

func (b *Bot) callbackHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	data := cb.Data

	if cb.Message.Message == nil {
		b.answer(ctx, cb, "")
		return
	}
	chatID, msgID := cb.Message.Message.Chat.ID, cb.Message.Message.ID
	if !b.authorized(ctx, &cb.From, chatID) {
		b.answer(ctx, cb, "")
		return
	}

	// A query can be answered once; branches that may alert answer it themselves.
	if !answersWithAlert(data) {
		b.answer(ctx, cb, "")
	}

	switch {
	case data == cbMenu:
		b.showMainMenu(ctx, chatID, msgID)
	case data == cbBroadcast:
		b.openBroadcast(ctx, chatID, msgID)
	case data == cbBroadcastStop:
		b.stopBroadcast(ctx, chatID, msgID)
	case data == cbNearby:
		b.openNearby(ctx, chatID, msgID)
	case data == cbNearbyStop:
		b.stopNearby(ctx, chatID, msgID)
	case strings.HasPrefix(data, cbPick):
		b.pickCandidate(ctx, cb, chatID, msgID, strings.TrimPrefix(data, cbPick))
	case data == cbSend:
		b.sendRequest(ctx, cb, chatID, msgID)
	case data == cbKeypadBack:
		b.sessions.Get(chatID).Composer.Reset()
		b.openNearby(ctx, chatID, msgID)
	case strings.HasPrefix(data, cbKey):
		b.pressKey(ctx, chatID, msgID, composer.Key(strings.TrimPrefix(data, cbKey)))
	case data == cbCart:
		b.showCart(ctx, chatID, msgID)
	case strings.HasPrefix(data, cbCartAdd):
		b.addToCart(ctx, cb, chatID, msgID, strings.TrimPrefix(data, cbCartAdd))
	case strings.HasPrefix(data, cbCartRemove):
		b.removeFromCart(ctx, chatID, msgID, strings.TrimPrefix(data, cbCartRemove))
	case data == cbCartClear:
		b.cart.Clear()
		b.showCart(ctx, chatID, msgID)
	case data == cbCartCharge:
		b.openNearby(ctx, chatID, msgID)
	case data == cbProfile:
		b.showProfile(ctx, chatID, msgID)
	default:
		b.log.Warn("unknown callback", "data", data, "user_id", cb.From.ID)
	}
}

func (b *Bot) showMainMenu(ctx context.Context, chatID int64, msgID int) {
	b.leaveRadio(chatID)
	b.sessions.Show(chatID, ScreenMenu, msgID)
	b.editMessage(ctx, chatID, msgID, MainMenuText(b.account(ctx)), MainKeyboard())
}

// --- Broadcast screen ---

func (b *Bot) openBroadcast(ctx context.Context, chatID int64, msgID int) {
	b.sessions.Show(chatID, ScreenBroadcast, msgID)
	account := b.account(ctx)

	// One radio screen at a time.
	b.scanner.Stop()
	if b.broadcaster.Status().State == presence.StateBroadcasting {
		b.broadcaster.Stop()
	}

	radioCtx := b.sessions.ClaimRadio(b.runCtx(), chatID)
	st := b.broadcaster.Start(radioCtx, account)
	if st.State == presence.StateError {
		b.sessions.ReleaseRadio(chatID)
	}

	b.editMessage(ctx, chatID, msgID, BroadcastText(st, account), BroadcastKeyboard(st))
}

func (b *Bot) stopBroadcast(ctx context.Context, chatID int64, msgID int) {
	st := b.broadcaster.Stop()
	b.sessions.ReleaseRadio(chatID)
	b.editMessage(ctx, chatID, msgID, BroadcastText(st, b.account(ctx)), BroadcastKeyboard(st))
}

// --- Nearby screen ---

func (b *Bot) openNearby(ctx context.Context, chatID int64, msgID int) {
	screen, _, _ := b.sessions.Current(chatID)
	gen := b.sessions.Show(chatID, ScreenNearby, msgID)

	st := b.scanner.Status()
	running := screen == ScreenNearby && st.State == presence.StateScanning && b.sessions.RadioOwner() == chatID
	if !running {
		if b.broadcaster.Status().State == presence.StateBroadcasting {
			b.broadcaster.Stop()
		}
		b.scanner.Stop()

		radioCtx := b.sessions.ClaimRadio(b.runCtx(), chatID)
		st = b.scanner.Start(radioCtx)
		if st.State == presence.StateError {
			b.sessions.ReleaseRadio(chatID)
		} else {
			go b.followRoster(radioCtx, chatID, gen)
		}
	}

	b.renderNearby(ctx, chatID, msgID, st, b.scanner.Roster().Snapshot())
}

func (b *Bot) stopNearby(ctx context.Context, chatID int64, msgID int) {
	b.scanner.Stop()
	b.sessions.ReleaseRadio(chatID)
	b.showMainMenu(ctx, chatID, msgID)
}

func (b *Bot) renderNearby(ctx context.Context, chatID int64, msgID int, st presence.Status, cands []presence.Candidate) {
	b.editMessage(ctx, chatID, msgID, NearbyText(st, cands), NearbyKeyboard(cands))
}

// followRoster re-renders the Nearby screen when the roster changes, at
// most once per rosterRefreshEvery, until the screen closes.
func (b *Bot) followRoster(ctx context.Context, chatID int64, gen uint64) {
	updates, cancel := b.scanner.Roster().Subscribe()
	defer cancel()

	ticker := time.NewTicker(rosterRefreshEvery)
	defer ticker.Stop()

	var latest []presence.Candidate
	dirty := false
	for {
		select {
		case <-ctx.Done():
			return
		case latest = <-updates:
			dirty = true
		case <-ticker.C:
			if !dirty {
				continue
			}
			screen, msgID, cur := b.sessions.Current(chatID)
			if screen != ScreenNearby || cur != gen {
				return
			}
			dirty = false
			b.renderNearby(ctx, chatID, msgID, b.scanner.Status(), latest)
		}
	}
}

// --- Keypad screen ---

func (b *Bot) pickCandidate(ctx context.Context, cb *models.CallbackQuery, chatID int64, msgID int, identifier string) {
	cand, ok := b.scanner.Roster().Get(identifier)
	if !ok {
		b.answer(ctx, cb, "This person is no longer nearby")
		b.openNearby(ctx, chatID, msgID)
		return
	}
	b.answer(ctx, cb, "")

	b.leaveRadio(chatID)
	b.sessions.Show(chatID, ScreenKeypad, msgID)

	c := b.sessions.Get(chatID).Composer
	c.Reset()
	c.SetRequester(b.account(ctx))
	c.Select(cand)
	if b.cart.Len() > 0 {
		c.Prefill(b.cart.Total())
	}

	b.renderKeypad(ctx, chatID, msgID, c)
}

func (b *Bot) pressKey(ctx context.Context, chatID int64, msgID int, key composer.Key) {
	if screen, _, _ := b.sessions.Current(chatID); screen != ScreenKeypad {
		return
	}
	c := b.sessions.Get(chatID).Composer
	c.Press(key)
	b.renderKeypad(ctx, chatID, msgID, c)
}

func (b *Bot) sendRequest(ctx context.Context, cb *models.CallbackQuery, chatID int64, msgID int) {
	screen, _, gen := b.sessions.Current(chatID)
	if screen != ScreenKeypad {
		b.answer(ctx, cb, "")
		return
	}
	c := b.sessions.Get(chatID).Composer

	switch err := c.Check(); {
	case err == nil:
		b.answer(ctx, cb, "")
	case errors.Is(err, composer.ErrInFlight):
		b.answer(ctx, cb, "")
		return
	default:
		b.answer(ctx, cb, draftErrorText(err))
		return
	}

	cand, _ := c.Candidate()
	amount := c.Display()
	b.editMessage(ctx, chatID, msgID,
		KeypadText(cand, amount, composer.State{Phase: composer.PhaseProcessing}),
		KeypadKeyboard(false, true),
	)

	st, err := c.SendRequest(ctx)
	if errors.Is(err, composer.ErrInFlight) {
		return
	}

	b.renderKeypad(ctx, chatID, msgID, c)
	if st.Phase != composer.PhaseSuccess {
		return
	}

	if b.cart.Len() > 0 && b.cart.Total().StringFixed(2) == amount {
		b.cart.Clear()
	}

	time.AfterFunc(b.cfg.SuccessAdvanceDelay, func() {
		screen, msgID, cur := b.sessions.Current(chatID)
		if screen != ScreenKeypad || cur != gen {
			return
		}
		c.Reset()
		b.openNearby(b.runCtx(), chatID, msgID)
	})
}

func (b *Bot) renderKeypad(ctx context.Context, chatID int64, msgID int, c *composer.Composer) {
	cand, _ := c.Candidate()
	st := c.State()
	b.editMessage(ctx, chatID, msgID,
		KeypadText(cand, c.Display(), st),
		KeypadKeyboard(c.CanSubmit(), st.Phase == composer.PhaseProcessing),
	)
}

func draftErrorText(err error) string {
	switch {
	case errors.Is(err, composer.ErrNoCandidate):
		return "Pick someone nearby first"
	case errors.Is(err, composer.ErrNoRequester):
		return "Set your account identifier with /id first"
	default:
		return "Enter an amount between 0.01 and 9999.99"
	}
}

// --- Cart screen ---

func (b *Bot) showCart(ctx context.Context, chatID int64, msgID int) {
	b.leaveRadio(chatID)
	b.sessions.Show(chatID, ScreenCart, msgID)

	products, err := b.storage.ListProducts(ctx)
	if err != nil {
		b.log.Error("list products", "error", err)
	}
	lines := b.cart.Lines()
	b.editMessage(ctx, chatID, msgID, CartText(lines, b.cart.Total()), CartKeyboard(products, lines))
}

func (b *Bot) addToCart(ctx context.Context, cb *models.CallbackQuery, chatID int64, msgID int, productID string) {
	p, err := b.storage.GetProduct(ctx, productID)
	if err != nil {
		b.log.Warn("get product", "product_id", productID, "error", err)
		b.answer(ctx, cb, "Product not found")
		return
	}
	b.answer(ctx, cb, "")
	if err := b.cart.Add(p.ID, p.Name, p.UnitPrice, 1); err != nil {
		b.log.Error("add to cart", "product_id", p.ID, "error", err)
	}
	b.showCart(ctx, chatID, msgID)
}

func (b *Bot) removeFromCart(ctx context.Context, chatID int64, msgID int, productID string) {
	qty := b.cart.Quantities()[productID]
	if qty > 0 {
		if err := b.cart.SetQuantity(productID, qty-1); err != nil {
			b.log.Error("remove from cart", "product_id", productID, "error", err)
		}
	}
	b.showCart(ctx, chatID, msgID)
}

// --- Profile screen ---

func (b *Bot) showProfile(ctx context.Context, chatID int64, msgID int) {
	b.leaveRadio(chatID)
	b.sessions.Show(chatID, ScreenProfile, msgID)

	account := b.account(ctx)
	var recent []storage.PaymentRequest
	if account != "" {
		var err error
		recent, err = b.storage.RecentPaymentRequests(ctx, account, recentRequests)
		if err != nil {
			b.log.Error("recent payment requests", "error", err)
		}
	}
	b.editMessage(ctx, chatID, msgID, ProfileText(account, recent), BackKeyboard())
}

// --- Helpers ---

func (b *Bot) authorized(ctx context.Context, from *models.User, chatID int64) bool {
	if from != nil && b.cfg.IsOperator(from.ID) {
		return true
	}
	var userID int64
	if from != nil {
		userID = from.ID
	}
	b.log.Warn("unauthorized console access", "user_id", userID, "chat_id", chatID)
	b.sendMessage(ctx, chatID, "⛔ This console is limited to operators.", nil)
	return false
}

// answer answers a callback query, as an alert when text is set.
func (b *Bot) answer(ctx context.Context, cb *models.CallbackQuery, text string) {
	params := &bot.AnswerCallbackQueryParams{CallbackQueryID: cb.ID}
	if text != "" {
		params.Text = text
		params.ShowAlert = true
	}
	if _, err := b.bot.AnswerCallbackQuery(ctx, params); err != nil {
		b.log.Debug("answer callback", "error", err)
	}
}

// leaveRadio stops the radio role held by chatID, if any.
func (b *Bot) leaveRadio(chatID int64) {
	if b.sessions.RadioOwner() != chatID {
		return
	}
	b.broadcaster.Stop()
	b.scanner.Stop()
	b.sessions.ReleaseRadio(chatID)
}

func (b *Bot) account(ctx context.Context) string {
	id, err := b.storage.AccountIdentifier(ctx)
	if err == nil {
		return id
	}
	if !errors.Is(err, storage.ErrNotFound) {
		b.log.Error("get account identifier", "error", err)
	}
	return b.cfg.AccountIdentifier
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) int {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	msg, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		b.log.Error("send message", "error", err)
		return 0
	}
	return msg.ID
}

func (b *Bot) editMessage(ctx context.Context, chatID int64, msgID int, text string, keyboard *models.InlineKeyboardMarkup) {
	if msgID == 0 {
		return
	}

	params := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: msgID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.EditMessageText(ctx, params)
	if err != nil && !strings.Contains(err.Error(), "message is not modified") {
		b.log.Error("edit message", "error", err)
	}
}

// SendNotification sends a standalone message to a chat.
func (b *Bot) SendNotification(ctx context.Context, chatID int64, text string) error {
	disablePreview := true
	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	})
	return err
}
