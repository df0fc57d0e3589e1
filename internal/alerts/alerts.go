// Package alerts forwards unexpected failures to the bot owner, with a
// per-failure cooldown so a flapping component cannot flood their DMs.
package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/ibis-bot/ibis/internal/logger"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityCritical
)

// NotifyFunc delivers one alert message, typically to the owner's DM channel.
type NotifyFunc func(message string)

type Alerter struct {
	mu        sync.Mutex
	notify    NotifyFunc
	cooldowns map[string]time.Time
	cooldown  time.Duration
}

func New(notify NotifyFunc, cooldown time.Duration) *Alerter {
	return &Alerter{
		notify:    notify,
		cooldowns: make(map[string]time.Time),
		cooldown:  cooldown,
	}
}

// Alert sends one notification unless the same component/message pair fired
// within the cooldown.
func (a *Alerter) Alert(severity Severity, component, message string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := component + ":" + message
	if lastSent, ok := a.cooldowns[key]; ok && time.Since(lastSent) < a.cooldown {
		logger.Debug("alert suppressed (cooldown)", "component", component, "message", message)
		return
	}

	var text string
	switch severity {
	case SeverityCritical:
		text = fmt.Sprintf("🚨 %s: %s", component, message)
	case SeverityWarn:
		text = fmt.Sprintf("⚠️ %s: %s", component, message)
	default:
		text = fmt.Sprintf("ℹ️ %s: %s", component, message)
	}
	if err != nil {
		text += fmt.Sprintf("\n\nError: %v", err)
	}

	if a.notify != nil {
		a.notify(text)
		a.cooldowns[key] = time.Now()
		logger.Info("alert sent", "component", component, "severity", severity)
	}
}

func (a *Alerter) Critical(component, message string, err error) {
	a.Alert(SeverityCritical, component, message, err)
}

func (a *Alerter) Warn(component, message string, err error) {
	a.Alert(SeverityWarn, component, message, err)
}
