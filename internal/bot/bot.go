package bot

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/yukawat/storyvote/internal/session"
)

// Bot is the Discord front-end. It watches one text channel, feeds every
// message into the coordinator's activity tracking, dispatches the `!`
// commands, and acts as the coordinator's channel notifier.
type Bot struct {
	session   *discordgo.Session
	channelID string
	coord     *session.Coordinator
}

func New(token, channelID string) (*Bot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	bot := &Bot{
		session:   dg,
		channelID: channelID,
	}

	dg.AddHandler(bot.onReady)
	dg.AddHandler(bot.onMessageCreate)

	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	return bot, nil
}

// SetCoordinator attaches the coordinator. Must be called before Start; the
// two-step wiring exists because the coordinator needs the bot as its
// notifier.
func (b *Bot) SetCoordinator(c *session.Coordinator) {
	b.coord = c
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	log.Println("Discord bot is running")
	return nil
}

func (b *Bot) Stop() error {
	return b.session.Close()
}

// SendChannelMessage implements session.Notifier.
func (b *Bot) SendChannelMessage(text string) {
	if _, err := b.session.ChannelMessageSend(b.channelID, text); err != nil {
		log.Printf("bot: sending to channel %s: %v", b.channelID, err)
	}
}

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	log.Printf("%s is connected!", event.User.Username)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore bots (ourselves included) so they never count as active voters.
	if m.Author.Bot {
		return
	}
	if m.ChannelID != b.channelID {
		return
	}

	user := m.Author.Username
	b.coord.Touch(user)

	switch cmd := Parse(m.Content); cmd.Kind {
	case KindGames:
		b.coord.Stories()
	case KindLoad:
		b.coord.Load(user, cmd.Arg)
	case KindVote:
		b.coord.CastVote(user, cmd.Arg)
	case KindVoteStatus:
		b.coord.VoteStatus()
	case KindStopGame:
		b.coord.Unload()
	case KindReplay:
		b.coord.Replay()
	case KindStatus:
		b.coord.Status()
	case KindHelp:
		b.SendChannelMessage("Commands: !games, !load <gamefile>, !vote <command>, !stopgame, !replay, !status")
	}
}
