package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pgorski/dosetrack/internal/config"
)

// TelegramNotifier delivers reminders to a single Telegram chat with
// inline action buttons. Callback queries from those buttons invoke
// the registered action handlers.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger

	// Telegram flood-limits bots to roughly one message per second
	// per chat.
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]Action // callback data -> action
}

func NewTelegramNotifier(cfg config.TelegramConfig, logger *zap.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	api.Debug = false

	ctx, cancel := context.WithCancel(context.Background())

	return &TelegramNotifier{
		api:     api,
		chatID:  cfg.ChatID,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(1), 3),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]Action),
	}, nil
}

// Start begins consuming callback queries for action buttons.
func (n *TelegramNotifier) Start() {
	n.wg.Add(1)
	go n.run()
}

// Stop shuts the update loop down.
func (n *TelegramNotifier) Stop() {
	n.cancel()
	n.api.StopReceivingUpdates()
	n.wg.Wait()
}

// Display sends the notification to the configured chat. Actions
// become inline keyboard buttons keyed by medication id and label.
func (n *TelegramNotifier) Display(ctx context.Context, medicationID, title, body string, actions []Action) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, fmt.Sprintf("*%s*\n%s", title, body))
	msg.ParseMode = tgbotapi.ModeMarkdown

	if len(actions) > 0 {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(actions))
		n.mu.Lock()
		for _, action := range actions {
			data := callbackData(medicationID, action.Label)
			n.pending[data] = action
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(action.Label, data))
		}
		n.mu.Unlock()
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons)
	}

	if _, err := n.api.Send(msg); err != nil {
		n.logger.Warn("Failed to send telegram notification",
			zap.String("medication_id", medicationID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func callbackData(medicationID, label string) string {
	return medicationID + "|" + strings.ToLower(strings.ReplaceAll(label, " ", "_"))
}

func (n *TelegramNotifier) run() {
	defer n.wg.Done()

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := n.api.GetUpdatesChan(updateCfg)

	for {
		select {
		case <-n.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.CallbackQuery == nil {
				continue
			}
			n.handleCallback(update.CallbackQuery)
		}
	}
}

func (n *TelegramNotifier) handleCallback(query *tgbotapi.CallbackQuery) {
	n.mu.Lock()
	action, ok := n.pending[query.Data]
	if ok {
		delete(n.pending, query.Data)
	}
	n.mu.Unlock()

	// Acknowledge the tap either way so the client stops spinning.
	if _, err := n.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		n.logger.Debug("Callback ack failed", zap.Error(err))
	}

	if !ok || action.OnInvoke == nil {
		return
	}
	action.OnInvoke(n.ctx)
}
