// Package keymap turns single-key input from a terminal or serial console
// into the events the race collaborators would normally raise.
package keymap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/comalice/racekart"
)

var keys = map[byte]racekart.Kind{
	'q': racekart.RaceStarted,
	'w': racekart.RaceFinished,
	'e': racekart.RaceCaution,
	'b': racekart.BumpDetected,
	'i': racekart.IRBeaconDetected,
	'o': racekart.IRBeaconLost,
	'd': racekart.DRSUpdated,
	't': racekart.MotorTimeout,
}

// Lookup maps a key, case-insensitively.
func Lookup(key byte) (racekart.Event, bool) {
	if key >= 'A' && key <= 'Z' {
		key += 'a' - 'A'
	}
	k, ok := keys[key]
	if !ok {
		return racekart.None, false
	}
	return racekart.NewEvent(k), true
}

// Bindings lists the mapping in key order, for usage text.
func Bindings() []string {
	var out []string
	for _, key := range []byte("qwebidot") {
		out = append(out, fmt.Sprintf("%c=%s", key-('a'-'A'), keys[key]))
	}
	return out
}

// Pump reads keys from r and posts the mapped events until r is exhausted
// or ctx is done. Whitespace is skipped; other unmapped keys are logged.
func Pump(ctx context.Context, r io.Reader, post func(racekart.Event), log zerolog.Logger) error {
	br := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("keymap: read: %w", err)
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		evt, ok := Lookup(b)
		if !ok {
			log.Debug().Str("key", string(rune(b))).Msg("unmapped key")
			continue
		}
		log.Info().Str("key", string(rune(b))).Stringer("event", evt).Msg("key")
		post(evt)
	}
}
