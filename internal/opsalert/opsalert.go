// Package opsalert pushes tick-failure notices to a Telegram ops
// channel. It is strictly best-effort: a failed or throttled alert is
// logged and forgotten, never surfaced to the pipeline.
package opsalert

import (
	"fmt"
	"strings"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"nudge/pkg/logx"
)

type Config struct {
	Token      string
	ChatID     int64
	RatePerMin int
}

type Notifier struct {
	bot     *tele.Bot
	chat    tele.ChatID
	limiter *rate.Limiter
	log     logx.Logger
}

// New returns (nil, nil) when alerting is not configured; callers treat
// a nil Notifier as disabled.
func New(cfg Config, log logx.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" || cfg.ChatID == 0 {
		return nil, nil
	}
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("opsalert: %w", err)
	}
	rpm := cfg.RatePerMin
	if rpm <= 0 {
		rpm = 6
	}
	return &Notifier{
		bot:     bot,
		chat:    tele.ChatID(cfg.ChatID),
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		log:     log,
	}, nil
}

// TickFailed reports one failed job tick. Throttled to avoid flooding
// the channel when every tick of a broken deployment fails.
func (n *Notifier) TickFailed(job string, err error) {
	if n == nil {
		return
	}
	if !n.limiter.Allow() {
		n.log.Debug("alert suppressed by rate limit", logx.String("job", job))
		return
	}
	text := fmt.Sprintf("⚠️ notification tick failed\njob: %s\nerror: %v", job, err)
	if _, sendErr := n.bot.Send(n.chat, text); sendErr != nil {
		n.log.Warn("failed to deliver ops alert", logx.String("job", job), logx.Err(sendErr))
	}
}
