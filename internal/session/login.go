package session

import (
	"context"
	"fmt"

	"github.com/acolita/appliance-shell/internal/channel"
	"github.com/acolita/appliance-shell/internal/config"
	"github.com/acolita/appliance-shell/internal/prompt"
	"github.com/acolita/appliance-shell/internal/security"
)

// maxLoginRounds bounds the username/password/pager exchanges before a shell
// prompt must appear.
const maxLoginRounds = 6

const challengePattern = `(?i)(?:login|username|user name|password):\s*$|-+\s*more\s*-+\s*$`

// login answers console credential challenges until the shell prompt shows.
// SSH appliances usually print the prompt straight away; telnet and serial
// consoles ask for a username and password first.
func (m *Manager) login(ctx context.Context, ch *channel.Channel, a config.ApplianceConfig, terms string) error {
	pattern := challengePattern + "|" + prompt.ShapePattern(terms)
	sentPassword := false

	for round := 0; round < maxLoginRounds; round++ {
		out, err := ch.ReadUntilPattern(ctx, pattern)
		if err != nil {
			return fmt.Errorf("wait for shell: %w", err)
		}

		switch m.detector.Classify(channel.StripANSI(out)) {
		case prompt.KindLogin:
			if sentPassword {
				m.authFailed(a)
				return ErrLoginRejected
			}
			if err := ch.WriteChannel(ctx, ch.NormalizeCmd(a.User)); err != nil {
				return err
			}

		case prompt.KindPassword:
			if sentPassword {
				m.authFailed(a)
				return ErrLoginRejected
			}
			pw, err := m.password(a)
			if err != nil {
				return err
			}
			err = ch.WriteSecret(ctx, ch.NormalizeCmd(string(pw)))
			security.WipeBytes(pw)
			if err != nil {
				return err
			}
			sentPassword = true

		case prompt.KindPager:
			if err := ch.WriteChannel(ctx, " "); err != nil {
				return err
			}

		default:
			if sentPassword {
				m.limiter.RecordSuccess(a.Host, a.User)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: no shell prompt after %d exchanges", ErrLoginRejected, maxLoginRounds)
}
