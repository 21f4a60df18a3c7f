package record

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Sender accepts replayed data, typically a running session's port.
type Sender interface {
	Send(data []byte) error
}

// Player replays the send events of a saved recording.
type Player struct {
	rec Recording
}

// Load reads a recording file written by Recorder.Stop.
func Load(path string) (*Player, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recording: %w", err)
	}
	var rec Recording
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding recording: %w", err)
	}
	return &Player{rec: rec}, nil
}

// Meta returns the recorded session description.
func (p *Player) Meta() Meta {
	return p.rec.Meta
}

// Recording returns the full capture, receive events included.
func (p *Player) Recording() Recording {
	return p.rec
}

// SendCount returns how many send events the recording holds.
func (p *Player) SendCount() int {
	n := 0
	for _, ev := range p.rec.Events {
		if ev.Type == EventSend {
			n++
		}
	}
	return n
}

// Play writes each send event to out, waiting out the recorded gap between
// consecutive sends divided by speed. speed values at or below zero replay
// at original timing. Returns how many events were sent before completion,
// cancellation, or a send failure.
func (p *Player) Play(ctx context.Context, out Sender, speed float64) (int, error) {
	if speed <= 0 {
		speed = 1
	}

	sent := 0
	last := time.Duration(-1)
	for _, ev := range p.rec.Events {
		if ev.Type != EventSend {
			continue
		}

		var gap time.Duration
		if last >= 0 && ev.Offset > last {
			gap = time.Duration(float64(ev.Offset-last) / speed)
		}
		if gap > 0 {
			timer := time.NewTimer(gap)
			select {
			case <-ctx.Done():
				timer.Stop()
				return sent, ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return sent, err
		}

		if err := out.Send([]byte(ev.Data)); err != nil {
			return sent, fmt.Errorf("replaying send event: %w", err)
		}
		sent++
		last = ev.Offset
	}
	return sent, nil
}
