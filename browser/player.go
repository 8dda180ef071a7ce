package browser

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoPlayer is returned when the page has no controllable player.
var ErrNoPlayer = errors.New("browser: no media player")

// Player controls the embedded video player of a page. It prefers the
// site player API and falls back to the raw video element.
type Player struct {
	page *Page
}

// Position implements dom.Player.
func (pl *Player) Position(ctx context.Context) (float64, error) {
	res, err := pl.page.eval(ctx, `() => {
		const mp = document.getElementById("movie_player");
		if (mp && typeof mp.getCurrentTime === "function") return mp.getCurrentTime();
		const v = document.querySelector("video.video-stream, video");
		return v ? v.currentTime : -1;
	}`)
	if err != nil {
		return 0, fmt.Errorf("browser: player position: %w", err)
	}
	pos := res.Value.Num()
	if pos < 0 {
		return 0, ErrNoPlayer
	}
	return pos, nil
}

// Seek implements dom.Player.
func (pl *Player) Seek(ctx context.Context, seconds int) error {
	res, err := pl.page.eval(ctx, `(s) => {
		const mp = document.getElementById("movie_player");
		if (mp && typeof mp.seekTo === "function") { mp.seekTo(s, true); return true; }
		const v = document.querySelector("video.video-stream, video");
		if (v) { v.currentTime = s; return true; }
		return false;
	}`, seconds)
	if err != nil {
		return fmt.Errorf("browser: seek: %w", err)
	}
	if !res.Value.Bool() {
		return ErrNoPlayer
	}
	return nil
}
