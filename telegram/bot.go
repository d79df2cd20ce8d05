package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"tonot_server/services"
)

// Bot is the Mini-App companion bot. It handles first contact (/start with
// an optional ref_<code> payload), balance checks, and the button opening
// the web app; all game actions happen inside the Mini App itself.
type Bot struct {
	bot       *tele.Bot
	users     *services.UserService
	webAppURL string
}

// NewBot creates the companion bot.
func NewBot(token, webAppURL string, users *services.UserService) (*Bot, error) {
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 60 * time.Second},
	}

	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:       bot,
		users:     users,
		webAppURL: webAppURL,
	}

	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/balance", b.handleBalance)
	b.bot.Handle("/help", b.handleHelp)

	return b, nil
}

// StartPolling runs the bot until ctx is canceled.
func (b *Bot) StartPolling(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.bot.Start()
}

func (b *Bot) handleStart(c tele.Context) error {
	sender := c.Sender()
	telegramID := strconv.FormatInt(sender.ID, 10)

	username := sender.Username
	if username == "" {
		username = sender.FirstName
	}

	var referralCode string
	if payload := c.Message().Payload; strings.HasPrefix(payload, "ref_") {
		referralCode = strings.TrimPrefix(payload, "ref_")
	}

	user, created, err := b.users.GetOrCreateUser(context.Background(), telegramID, username, referralCode)
	if err != nil {
		log.Printf("⚠️ /start failed for %s: %v", telegramID, err)
		return c.Send("Something went wrong, please try again.")
	}

	text := fmt.Sprintf(`Hey, %s! 👋

🪙 <b>TONOT Chance</b> — flip a coin 1v1 or try the X10 pool.

Open the Mini App to play.`, sender.FirstName)

	if created && len(user.ReferredBy) > 0 {
		text += "\n\n🎁 You joined through a friend's invite!"
	}

	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(
			keyboard.WebApp("🎮 Play now", &tele.WebApp{URL: b.webAppURL}),
		),
	)

	return c.Send(text, keyboard, tele.ModeHTML)
}

func (b *Bot) handleBalance(c tele.Context) error {
	telegramID := strconv.FormatInt(c.Sender().ID, 10)

	user, err := b.users.GetUser(context.Background(), telegramID)
	if err != nil {
		return c.Send("No account yet — press /start first.")
	}

	text := fmt.Sprintf(`💰 <b>Your balances</b>

🎟 Tickets: %d
🎰 Chance tickets: %d
🏆 Winnings: %d`,
		user.Tickets,
		user.TonotChanceTickets,
		user.Balance,
	)

	return c.Send(text, tele.ModeHTML)
}

func (b *Bot) handleHelp(c tele.Context) error {
	text := `📖 <b>TONOT Chance</b>

/start — open the game
/balance — your tickets and winnings

1v1: both players stake tickets, winner takes double.
X10: ten players pay one chance ticket, three winners split the prize.`

	return c.Send(text, tele.ModeHTML)
}
