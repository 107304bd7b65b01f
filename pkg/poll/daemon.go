// Package poll implements the inbox polling daemon: it auto-acknowledges
// incoming messages for an agent and escalates to a human operator when a
// question is detected or the reply budget runs out.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/Brickmii/team-table/pkg/store"
)

// ErrEscalated is returned by Run when the daemon stopped auto-replying and
// handed the conversation to a human operator.
var ErrEscalated = errors.New("escalated to operator")

// questionPatterns match messages that look like they need a human decision.
var questionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\?\s*$`),
	regexp.MustCompile(`(?i)^(should|could|would|can) (we|you|i)\b`),
	regexp.MustCompile(`(?i)\b(what do you think|your (thoughts|opinion|preference))\b`),
	regexp.MustCompile(`(?i)\b(decide|choose|pick|approve|confirm)\b`),
	regexp.MustCompile(`(?i)\b(escalat\w*|ask the user|check with|need (your|human))\b`),
}

// NeedsEscalation reports whether content looks like a question or a request
// for a decision.
func NeedsEscalation(content string) bool {
	for _, pattern := range questionPatterns {
		if pattern.MatchString(content) {
			return true
		}
	}
	return false
}

// ReplyFunc produces the auto-reply body for a message. The daemon relays
// and tracks; any real intelligence belongs to the agent behind it.
type ReplyFunc func(agent, sender, content string) string

func defaultReply(agent, sender, content string) string {
	return fmt.Sprintf("Acknowledged: received your message. (auto-reply from %s)", agent)
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithInterval sets the polling period.
func WithInterval(d time.Duration) Option {
	return func(daemon *Daemon) {
		if d > 0 {
			daemon.interval = d
		}
	}
}

// WithMaxReplies sets the auto-reply budget before escalation.
func WithMaxReplies(n int) Option {
	return func(daemon *Daemon) {
		if n > 0 {
			daemon.maxReplies = n
		}
	}
}

// WithReplyFunc replaces the acknowledgement generator.
func WithReplyFunc(fn ReplyFunc) Option {
	return func(daemon *Daemon) {
		if fn != nil {
			daemon.reply = fn
		}
	}
}

// WithLogger sets the daemon logger.
func WithLogger(logger *slog.Logger) Option {
	return func(daemon *Daemon) {
		if logger != nil {
			daemon.logger = logger
		}
	}
}

// Daemon polls one agent's inbox and auto-replies until escalation.
type Daemon struct {
	store      *store.Store
	agent      string
	interval   time.Duration
	maxReplies int
	reply      ReplyFunc
	logger     *slog.Logger

	totalReplies int
	perSender    map[string]int
}

// New creates a polling daemon for agent.
func New(st *store.Store, agent string, opts ...Option) *Daemon {
	d := &Daemon{
		store:      st,
		agent:      agent,
		interval:   30 * time.Second,
		maxReplies: 13,
		reply:      defaultReply,
		logger:     slog.Default(),
		perSender:  map[string]int{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run registers the agent and polls until the context is canceled or an
// escalation stops auto-replies. Transient store errors are logged and the
// next tick retries.
func (d *Daemon) Run(ctx context.Context) error {
	if _, err := d.store.Register(ctx, d.agent, "", nil); err != nil {
		return fmt.Errorf("register %s: %w", d.agent, err)
	}

	d.logger.Info("polling daemon started",
		"agent", d.agent, "interval", d.interval, "max_replies", d.maxReplies)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.poll(ctx); err != nil {
			if errors.Is(err, ErrEscalated) || errors.Is(err, context.Canceled) {
				return err
			}
			d.logger.Error("poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			d.logger.Info("polling daemon stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll is one tick: refresh liveness, drain the inbox, reply or escalate.
func (d *Daemon) poll(ctx context.Context) error {
	if _, err := d.store.Heartbeat(ctx, d.agent); err != nil {
		return err
	}
	messages, err := d.store.GetMessages(ctx, d.agent, false, false)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if msg.Sender == d.agent {
			continue
		}
		d.logger.Info("message received",
			"sender", msg.Sender, "id", msg.ID, "content", truncate(msg.Content, 120))

		d.perSender[msg.Sender]++
		d.totalReplies++

		if d.totalReplies > d.maxReplies {
			d.logger.Warn("escalation: reply budget exhausted",
				"max_replies", d.maxReplies, "sender", msg.Sender)
			d.send(ctx, msg.Sender, fmt.Sprintf(
				"[AUTO] Message limit (%d) reached. Escalating to human operator. Please stand by.",
				d.maxReplies))
			return ErrEscalated
		}

		if NeedsEscalation(msg.Content) {
			d.logger.Warn("escalation: question or decision detected",
				"sender", msg.Sender, "content", truncate(msg.Content, 200))
			d.send(ctx, msg.Sender, fmt.Sprintf(
				"[AUTO] This looks like it needs a human decision. Escalating to %s's operator. Please stand by.",
				d.agent))
			return ErrEscalated
		}

		reply := d.reply(d.agent, msg.Sender, msg.Content)
		d.send(ctx, msg.Sender, reply)
		d.logger.Info("auto-reply sent",
			"recipient", msg.Sender, "reply", d.totalReplies, "budget", d.maxReplies)
	}
	return nil
}

// send delivers best-effort; a refused reply never kills the daemon.
func (d *Daemon) send(ctx context.Context, recipient, content string) {
	if _, err := d.store.SendMessage(ctx, d.agent, recipient, content); err != nil {
		d.logger.Error("reply failed", "recipient", recipient, "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
