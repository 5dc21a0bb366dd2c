// Package commands interprets chat messages addressed to the bot:
// listing connected repositories, creating issues, and help.
package commands

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/braidchat/octocat/internal/braid"
	"github.com/braidchat/octocat/internal/config"
	"github.com/braidchat/octocat/internal/github"
	"github.com/braidchat/octocat/internal/message"
	"github.com/braidchat/octocat/internal/tracking"
)

// leadingName strips the "/botname" prefix users type to address the
// bot. Only a leading /word counts; slashes elsewhere stay.
var leadingName = regexp.MustCompile(`^/(\w+)\b`)

// Interpreter parses bot commands and produces chat replies. It holds
// no per-message state.
type Interpreter struct {
	cfg     *config.Config
	chat    braid.Chatter
	tracker github.Tracker
	store   tracking.Store
}

// NewInterpreter wires a command interpreter.
func NewInterpreter(cfg *config.Config, chat braid.Chatter, tracker github.Tracker, store tracking.Store) *Interpreter {
	return &Interpreter{cfg: cfg, chat: chat, tracker: tracker, store: store}
}

// Handle interprets one inbound chat message. User-facing failures
// reply in the invoking thread; everything else is logged and dropped,
// nothing propagates.
func (i *Interpreter) Handle(ctx context.Context, msg message.Message) {
	body := strings.TrimSpace(leadingName.ReplaceAllString(msg.Content, ""))
	fields := strings.Fields(body)

	command := ""
	if len(fields) > 0 {
		command = fields[0]
	}

	switch command {
	case "list":
		i.sendRepoList(ctx, msg)
	case "create":
		i.createIssue(ctx, msg, fields[1:])
	default:
		i.sendHelp(ctx, msg)
	}
}

func (i *Interpreter) sendHelp(ctx context.Context, msg message.Message) {
	name := i.cfg.Braid.Name
	help := fmt.Sprintf("'/%s help' shows this message\n", name) +
		fmt.Sprintf("'/%s list' lists the connected github repos\n", name) +
		fmt.Sprintf("'/%s create <repo> <title...>' creates an issue in <repo>", name)
	i.reply(ctx, msg, help)
}

func (i *Interpreter) sendRepoList(ctx context.Context, msg message.Message) {
	var reply strings.Builder
	for _, repo := range i.cfg.Repos {
		reply.WriteString(repo.FullName())
		reply.WriteString("\n")
	}
	i.reply(ctx, msg, reply.String())
}

func (i *Interpreter) createIssue(ctx context.Context, msg message.Message, args []string) {
	if len(args) == 0 {
		i.reply(ctx, msg, "Don't know which repo you mean, sorry")
		return
	}

	repo := i.cfg.FindRepo(args[0])
	if repo == nil {
		log.Info().Str("selector", args[0]).Msg("create: unknown repo selector")
		i.reply(ctx, msg, "Don't know which repo you mean, sorry")
		return
	}
	title := strings.Join(args[1:], " ")

	sender := i.senderLabel(ctx, msg.UserID)
	body := fmt.Sprintf("Created by %s bot on behalf of %s from [braid chat](%s)",
		i.cfg.Braid.Name, sender,
		braid.ThreadURL(i.cfg.Braid.SiteURL, msg.GroupID, msg.ThreadID))

	issue, err := i.tracker.CreateIssue(ctx, *repo, title, body)
	if err != nil {
		log.Error().Err(err).Str("repo", repo.FullName()).Msg("create: tracker call failed")
		i.reply(ctx, msg, "Couldn't create issue, sorry")
		return
	}

	log.Info().Str("repo", repo.FullName()).Int("issue", issue.Number).
		Str("url", issue.URL).Msg("issue created from chat")

	// Announce in a fresh thread tagged for the repo, and watch that
	// thread. The record goes in first: if it conflicts, the
	// announcement is abandoned along with it.
	announce := message.NewThreadMsg(msg.GroupID, repo.TagID, "New issue opened: "+issue.URL)
	err = i.store.AddWatchedThread(ctx, announce.ThreadID, repo.FullName(), issue.Number)
	if err != nil {
		log.Error().Err(err).Str("repo", repo.FullName()).Int("issue", issue.Number).
			Msg("create: could not record watched thread")
		return
	}

	if err := i.chat.SendMessage(ctx, announce); err != nil {
		log.Error().Err(err).Str("thread", announce.ThreadID).Msg("create: announcement failed")
	}
	if err := i.chat.Subscribe(ctx, announce.ThreadID); err != nil {
		log.Error().Err(err).Str("thread", announce.ThreadID).Msg("create: subscribe failed")
	}
}

// senderLabel resolves a display name, falling back to a generic
// label when the platform does not know the user.
func (i *Interpreter) senderLabel(ctx context.Context, userID string) string {
	nick, err := i.chat.Nickname(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("nickname lookup failed")
		return "a braid user"
	}
	if nick == "" {
		return "a braid user"
	}
	return nick
}

func (i *Interpreter) reply(ctx context.Context, msg message.Message, content string) {
	if err := i.chat.SendMessage(ctx, message.ResponseTo(msg, content)); err != nil {
		log.Error().Err(err).Str("thread", msg.ThreadID).Msg("reply failed")
	}
}
