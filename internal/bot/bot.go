package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/lorenzodm/tutorflow/internal/reconcile"
)

// ReplyHandler receives operator replies, correlated by conversation id
// (= external event id). The engine implements it.
type ReplyHandler interface {
	HandleReply(ctx context.Context, conversationID, text string, receivedAt time.Time)
}

// Bot is the Discord side of the confirmation workflow: it sends prompts
// with Sì/No/price buttons into the operator channel and flattens button
// presses, modal submissions and threaded text replies into the canonical
// reply forms the workflow understands.
type Bot struct {
	session   *discordgo.Session
	channelID string
	replies   ReplyHandler
	log       zerolog.Logger

	mu      sync.Mutex
	prompts map[string]string // prompt message id -> external event id
}

func New(token, channelID string, logger zerolog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	bot := &Bot{
		session:   session,
		channelID: channelID,
		log:       logger,
		prompts:   make(map[string]string),
	}

	// Register event handlers
	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onMessageCreate)
	session.AddHandler(bot.onInteractionCreate)

	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	return bot, nil
}

// SetReplyHandler wires the engine in after construction; the bot and the
// engine reference each other, so one side has to bind late.
func (b *Bot) SetReplyHandler(h ReplyHandler) {
	b.replies = h
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	b.log.Info().Msg("discord bot is running")
	return nil
}

func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	b.log.Info().Str("user", event.User.Username).Msg("connected to discord")
}

// onMessageCreate handles free-text replies: a threaded reply to one of our
// prompt messages is routed to that prompt's conversation.
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.Bot || m.ChannelID != b.channelID || b.replies == nil {
		return
	}
	if m.MessageReference == nil {
		return
	}

	b.mu.Lock()
	eventID, ok := b.prompts[m.MessageReference.MessageID]
	b.mu.Unlock()
	if !ok {
		return
	}

	b.replies.HandleReply(context.Background(), eventID, strings.TrimSpace(m.Content), time.Now())
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		b.handleComponent(s, i)
	case discordgo.InteractionModalSubmit:
		b.handleModalSubmit(s, i)
	}
}

func (b *Bot) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if b.replies == nil {
		return
	}
	action, eventID, ok := splitCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}

	switch action {
	case "confirm_yes":
		b.replies.HandleReply(context.Background(), eventID, "si", time.Now())
		b.respond(s, i, "Registrato: lezione svolta ✅")
	case "confirm_paid":
		b.replies.HandleReply(context.Background(), eventID, "pagato", time.Now())
		b.replies.HandleReply(context.Background(), eventID, "si", time.Now())
		b.respond(s, i, "Registrato: lezione svolta e pagata ✅")
	case "confirm_no":
		b.replies.HandleReply(context.Background(), eventID, "no", time.Now())
		b.respond(s, i, "Registrato: lezione non svolta ❌")
	case "confirm_price":
		b.showPriceModal(s, i, eventID)
	}
}

func (b *Bot) showPriceModal(s *discordgo.Session, i *discordgo.InteractionCreate, eventID string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: "price_modal:" + eventID,
			Title:    "Prezzo della lezione",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    "price",
							Label:       "Prezzo (€)",
							Style:       discordgo.TextInputShort,
							Placeholder: "es. 45 oppure 45.50",
							Required:    true,
							MaxLength:   10,
						},
					},
				},
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    "paid",
							Label:       "Importo già pagato (€, opzionale)",
							Style:       discordgo.TextInputShort,
							Placeholder: "lascia vuoto se non pagata",
							Required:    false,
							MaxLength:   10,
						},
					},
				},
			},
		},
	})
	if err != nil {
		b.log.Error().Err(err).Str("event_id", eventID).Msg("failed to open price modal")
	}
}

func (b *Bot) handleModalSubmit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if b.replies == nil {
		return
	}
	data := i.ModalSubmitData()
	action, eventID, ok := splitCustomID(data.CustomID)
	if !ok || action != "price_modal" {
		return
	}

	var price, paid string
	for _, component := range data.Components {
		actionRow, ok := component.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range actionRow.Components {
			input, ok := c.(*discordgo.TextInput)
			if !ok {
				continue
			}
			switch input.CustomID {
			case "price":
				price = strings.TrimSpace(input.Value)
			case "paid":
				paid = strings.TrimSpace(input.Value)
			}
		}
	}

	if paid != "" {
		b.replies.HandleReply(context.Background(), eventID, "pagato "+paid, time.Now())
	}
	if price != "" {
		b.replies.HandleReply(context.Background(), eventID, "prezzo "+price, time.Now())
	}
	b.respond(s, i, "Registrato: prezzo aggiornato 💶")
}

func (b *Bot) respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("failed to respond to interaction")
	}
}

// SendPrompt implements reconcile.Messenger.
func (b *Bot) SendPrompt(ctx context.Context, c reconcile.Candidate) error {
	return b.sendWithButtons(ctx, c, promptText(c))
}

// SendPriceRequest asks for a manual price when no rate is on file.
func (b *Bot) SendPriceRequest(ctx context.Context, c reconcile.Candidate) error {
	msg, err := b.session.ChannelMessageSendComplex(b.channelID, &discordgo.MessageSend{
		Content: priceRequestText(c),
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "💶 Inserisci prezzo",
						Style:    discordgo.PrimaryButton,
						CustomID: "confirm_price:" + c.ExternalEventID,
					},
				},
			},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	b.track(msg.ID, c.ExternalEventID)
	return nil
}

// SendReminder re-prompts once; the confirmation deadline does not move.
func (b *Bot) SendReminder(ctx context.Context, c reconcile.Candidate) error {
	return b.sendWithButtons(ctx, c, reminderText(c))
}

func (b *Bot) sendWithButtons(ctx context.Context, c reconcile.Candidate, content string) error {
	msg, err := b.session.ChannelMessageSendComplex(b.channelID, &discordgo.MessageSend{
		Content: content,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "✅ Sì",
						Style:    discordgo.SuccessButton,
						CustomID: "confirm_yes:" + c.ExternalEventID,
					},
					discordgo.Button{
						Label:    "✅ Sì, pagata",
						Style:    discordgo.SuccessButton,
						CustomID: "confirm_paid:" + c.ExternalEventID,
					},
					discordgo.Button{
						Label:    "❌ No",
						Style:    discordgo.DangerButton,
						CustomID: "confirm_no:" + c.ExternalEventID,
					},
					discordgo.Button{
						Label:    "💶 Prezzo diverso",
						Style:    discordgo.SecondaryButton,
						CustomID: "confirm_price:" + c.ExternalEventID,
					},
				},
			},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	b.track(msg.ID, c.ExternalEventID)
	return nil
}

func (b *Bot) track(messageID, eventID string) {
	b.mu.Lock()
	b.prompts[messageID] = eventID
	b.mu.Unlock()
}

func splitCustomID(customID string) (action, eventID string, ok bool) {
	i := strings.IndexByte(customID, ':')
	if i <= 0 || i == len(customID)-1 {
		return "", "", false
	}
	return customID[:i], customID[i+1:], true
}
