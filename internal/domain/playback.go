package domain

import (
	"math"
	"time"
)

// Playback — авторитетное состояние таймлайна комнаты.
// Paused(t): Playing=false, Anchor=t.
// Playing(t0, startedAt): позиция считается на лету как t0 + (now - startedAt).
type Playback struct {
	Anchor    float64
	Playing   bool
	StartedAt time.Time
}

func (p Playback) Position(now time.Time) float64 {
	if !p.Playing {
		return p.Anchor
	}
	elapsed := now.Sub(p.StartedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return p.Anchor + elapsed
}

func PlayingAt(t float64, now time.Time) Playback {
	return Playback{Anchor: t, Playing: true, StartedAt: now}
}

func PausedAt(t float64) Playback {
	return Playback{Anchor: t}
}

// Seek сохраняет режим (play/pause) и переставляет якорь.
func (p Playback) Seek(t float64, now time.Time) Playback {
	if p.Playing {
		return PlayingAt(t, now)
	}
	return PausedAt(t)
}

func ValidPosition(t float64) bool {
	return !math.IsNaN(t) && !math.IsInf(t, 0) && t >= 0
}
