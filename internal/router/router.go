// Package router decides what an inbound event means: tracker
// webhooks are classified and relayed into chat, chat messages are
// relayed as issue comments or handed to the command interpreter.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/braidchat/octocat/internal/braid"
	"github.com/braidchat/octocat/internal/config"
	"github.com/braidchat/octocat/internal/github"
	"github.com/braidchat/octocat/internal/message"
	"github.com/braidchat/octocat/internal/payload"
	"github.com/braidchat/octocat/internal/tracking"
)

// Action classifies a tracker webhook. Classification happens once,
// right after decoding; each handler then deals with one shape only.
type Action int

const (
	ActionIgnored Action = iota
	ActionOpened
	ActionCommentCreated
	ActionClosed
)

func (a Action) String() string {
	switch a {
	case ActionOpened:
		return "opened"
	case ActionCommentCreated:
		return "comment-created"
	case ActionClosed:
		return "closed"
	default:
		return "ignored"
	}
}

// Classify maps a webhook payload to an Action. A "created" action
// only counts as a comment event when a comment object is present.
func Classify(p payload.Payload) Action {
	action, ok := p.Field("action").AsString()
	if !ok {
		return ActionIgnored
	}
	switch action {
	case "opened":
		return ActionOpened
	case "created":
		if p.Field("comment").Present() {
			return ActionCommentCreated
		}
		return ActionIgnored
	case "closed":
		return ActionClosed
	default:
		return ActionIgnored
	}
}

// CommandHandler consumes chat messages that are not comment relays.
type CommandHandler interface {
	Handle(ctx context.Context, msg message.Message)
}

// Router drives the correlation store and relay clients from inbound
// events.
type Router struct {
	cfg      *config.Config
	chat     braid.Chatter
	tracker  github.Tracker
	store    tracking.Store
	commands CommandHandler
}

// New wires an event router.
func New(cfg *config.Config, chat braid.Chatter, tracker github.Tracker, store tracking.Store, commands CommandHandler) *Router {
	return &Router{cfg: cfg, chat: chat, tracker: tracker, store: store, commands: commands}
}

// HandleWebhook processes one verified tracker webhook body. All
// failures are terminal for this event only: logged, never retried,
// never propagated.
func (r *Router) HandleWebhook(ctx context.Context, body []byte) {
	p, err := payload.Parse(body)
	if err != nil {
		log.Error().Err(err).Msg("webhook dropped: malformed payload")
		return
	}

	action := Classify(p)
	switch action {
	case ActionOpened:
		r.handleOpened(ctx, p)
	case ActionCommentCreated:
		r.handleCommentCreated(ctx, p)
	case ActionClosed:
		r.handleClosed(ctx, p)
	default:
		raw, _ := p.Field("action").AsString()
		log.Debug().Str("action", raw).Msg("webhook ignored")
	}
}

// issueRef pulls the (repository, issue number) pair every handled
// webhook needs, resolving the repository against configuration.
func (r *Router) issueRef(p payload.Payload) (*config.RepoConfig, int, error) {
	repoName, ok := p.Path("repository", "full_name").AsString()
	if !ok {
		return nil, 0, fmt.Errorf("missing repository.full_name")
	}
	number, ok := p.Path("issue", "number").AsInt64()
	if !ok {
		return nil, 0, fmt.Errorf("missing issue.number")
	}
	repo := r.cfg.RepoByFullName(repoName)
	if repo == nil {
		return nil, 0, fmt.Errorf("repository %s is not configured", repoName)
	}
	return repo, int(number), nil
}

func (r *Router) handleOpened(ctx context.Context, p payload.Payload) {
	repo, number, err := r.issueRef(p)
	if err != nil {
		log.Error().Err(err).Msg("opened webhook dropped")
		return
	}

	creator, ok := p.Path("issue", "user", "login").AsString()
	if !ok {
		log.Error().Str("repo", repo.FullName()).Int("issue", number).
			Msg("opened webhook dropped: missing issue.user.login")
		return
	}
	title, ok := p.Path("issue", "title").AsString()
	if !ok {
		log.Error().Str("repo", repo.FullName()).Int("issue", number).
			Msg("opened webhook dropped: missing issue.title")
		return
	}
	url, ok := p.Path("issue", "html_url").AsString()
	if !ok {
		log.Error().Str("repo", repo.FullName()).Int("issue", number).
			Msg("opened webhook dropped: missing issue.html_url")
		return
	}

	existing, err := r.store.ThreadForIssue(ctx, repo.FullName(), number)
	if err != nil {
		log.Error().Err(err).Msg("opened webhook dropped: store lookup failed")
		return
	}
	if existing != nil {
		// Duplicate delivery, or the issue was chat-initiated and the
		// interpreter already recorded it.
		log.Debug().Str("repo", repo.FullName()).Int("issue", number).
			Str("thread", existing.ThreadID).Msg("issue already tracked")
		return
	}

	content := fmt.Sprintf("%s opened issue: %s\n%s", creator, title, url)
	announce := message.NewThreadMsg(repo.GroupID, repo.TagID, content)

	err = r.store.AddWatchedThread(ctx, announce.ThreadID, repo.FullName(), number)
	if err != nil {
		if errors.Is(err, tracking.ErrAlreadyWatched) {
			// Lost the race against a concurrent delivery; the winner
			// sends the announcement.
			log.Debug().Str("repo", repo.FullName()).Int("issue", number).
				Msg("issue tracked concurrently")
			return
		}
		log.Error().Err(err).Str("repo", repo.FullName()).Int("issue", number).
			Msg("opened webhook dropped: could not record watched thread")
		return
	}

	if err := r.chat.SendMessage(ctx, announce); err != nil {
		log.Error().Err(err).Str("thread", announce.ThreadID).Msg("issue announcement failed")
	}
	if err := r.chat.Subscribe(ctx, announce.ThreadID); err != nil {
		log.Error().Err(err).Str("thread", announce.ThreadID).Msg("thread subscribe failed")
	}
	log.Info().Str("repo", repo.FullName()).Int("issue", number).
		Str("thread", announce.ThreadID).Msg("issue relayed to new thread")
}

func (r *Router) handleCommentCreated(ctx context.Context, p payload.Payload) {
	repo, number, err := r.issueRef(p)
	if err != nil {
		log.Error().Err(err).Msg("comment webhook dropped")
		return
	}

	commentID, ok := p.Path("comment", "id").AsInt64()
	if !ok {
		log.Error().Str("repo", repo.FullName()).Int("issue", number).
			Msg("comment webhook dropped: missing comment.id")
		return
	}

	watched, err := r.store.ThreadForIssue(ctx, repo.FullName(), number)
	if err != nil {
		log.Error().Err(err).Msg("comment webhook dropped: store lookup failed")
		return
	}
	if watched == nil {
		log.Debug().Str("repo", repo.FullName()).Int("issue", number).
			Msg("comment on untracked issue ignored")
		return
	}

	ours, err := r.store.DidWePostComment(ctx, watched.ThreadID, commentID)
	if err != nil {
		log.Error().Err(err).Msg("comment webhook dropped: suppression lookup failed")
		return
	}
	if ours {
		log.Debug().Str("thread", watched.ThreadID).Int64("comment", commentID).
			Msg("own comment echo suppressed")
		return
	}

	commenter, ok := p.Path("comment", "user", "login").AsString()
	if !ok {
		log.Error().Int64("comment", commentID).Msg("comment webhook dropped: missing comment.user.login")
		return
	}
	body, ok := p.Path("comment", "body").AsString()
	if !ok {
		log.Error().Int64("comment", commentID).Msg("comment webhook dropped: missing comment.body")
		return
	}

	relay := message.ReplyToThread(repo.GroupID, watched.ThreadID,
		fmt.Sprintf("%s commented:\n%s", commenter, body))
	if err := r.chat.SendMessage(ctx, relay); err != nil {
		log.Error().Err(err).Str("thread", watched.ThreadID).Msg("comment relay failed")
		return
	}
	log.Info().Str("thread", watched.ThreadID).Int64("comment", commentID).
		Msg("comment relayed to chat")
}

func (r *Router) handleClosed(ctx context.Context, p payload.Payload) {
	repo, number, err := r.issueRef(p)
	if err != nil {
		log.Error().Err(err).Msg("closed webhook dropped")
		return
	}

	watched, err := r.store.ThreadForIssue(ctx, repo.FullName(), number)
	if err != nil {
		log.Error().Err(err).Msg("closed webhook dropped: store lookup failed")
		return
	}
	if watched == nil {
		log.Debug().Str("repo", repo.FullName()).Int("issue", number).
			Msg("close of untracked issue ignored")
		return
	}

	closer, ok := p.Path("sender", "login").AsString()
	if !ok {
		log.Error().Str("repo", repo.FullName()).Int("issue", number).
			Msg("closed webhook dropped: missing sender.login")
		return
	}

	relay := message.ReplyToThread(repo.GroupID, watched.ThreadID,
		"issue has been closed by "+closer)
	if err := r.chat.SendMessage(ctx, relay); err != nil {
		log.Error().Err(err).Str("thread", watched.ThreadID).Msg("close relay failed")
		return
	}
	log.Info().Str("repo", repo.FullName()).Int("issue", number).Msg("close relayed to chat")
}

// HandleChatMessage dispatches one decoded chat message: a comment
// relay when the thread watches an issue, a bot command otherwise.
func (r *Router) HandleChatMessage(ctx context.Context, msg message.Message) {
	watched, err := r.store.IssueForThread(ctx, msg.ThreadID)
	if err != nil {
		log.Error().Err(err).Str("thread", msg.ThreadID).Msg("chat message dropped: store lookup failed")
		return
	}
	if watched == nil {
		r.commands.Handle(ctx, msg)
		return
	}

	repo := r.cfg.RepoByFullName(watched.Repository)
	if repo == nil {
		log.Error().Str("repo", watched.Repository).Str("thread", msg.ThreadID).
			Msg("chat message dropped: watched repository no longer configured")
		return
	}

	author := r.authorLabel(ctx, msg.UserID)
	body := fmt.Sprintf("**%s** says:\n%s\n\n[from braid](%s)",
		author, msg.Content,
		braid.ThreadURL(r.cfg.Braid.SiteURL, msg.GroupID, msg.ThreadID))

	commentID, err := r.tracker.PostComment(ctx, *repo, watched.IssueNumber, body)
	if err != nil {
		log.Error().Err(err).Str("repo", repo.FullName()).Int("issue", watched.IssueNumber).
			Msg("comment relay to tracker failed")
		return
	}

	// Record before the echo webhook can arrive; if this fails we may
	// relay our own comment back, which is annoying but harmless.
	if err := r.store.TrackComment(ctx, msg.ThreadID, commentID); err != nil {
		log.Error().Err(err).Int64("comment", commentID).Msg("could not record posted comment")
	}
	log.Info().Str("repo", repo.FullName()).Int("issue", watched.IssueNumber).
		Int64("comment", commentID).Msg("chat message relayed as issue comment")
}

func (r *Router) authorLabel(ctx context.Context, userID string) string {
	nick, err := r.chat.Nickname(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("nickname lookup failed")
		return "a braid user"
	}
	if nick == "" {
		return "a braid user"
	}
	return nick
}
