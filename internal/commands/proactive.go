package commands

import (
	"context"
	"errors"

	"github.com/keshon/himera/internal/auth"
	"github.com/keshon/himera/internal/initiation"
	"github.com/keshon/himera/pkg/cmd"
)

const (
	replyNoProactivity = "Proactive messages are not available right now."
	replyUnauthorized  = "This is available to authorized users only."
)

func (d Deps) settings() *initiation.Settings {
	if d.Initiation == nil {
		return nil
	}
	return d.Initiation.Settings
}

type writemeCmd struct {
	meta
	d Deps
}

func (c *writemeCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	s := c.d.settings()
	if s == nil {
		inv.Replyf(replyNoProactivity)
		return nil
	}
	err := s.Enable(ctx, inv.UserID)
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		inv.Replyf(replyUnauthorized)
		return nil
	case errors.Is(err, initiation.ErrNotInGroup):
		inv.Replyf("Proactive messages are being tested and are not open to you yet.")
		return nil
	case err != nil:
		return err
	}
	inv.Replyf("Proactive messages: on. I will write to you now and then.\nPause: /writeme_pause 3h\nTurn off: /dontwrite")
	return nil
}

type dontwriteCmd struct {
	meta
	d Deps
}

func (c *dontwriteCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	s := c.d.settings()
	if s == nil {
		inv.Replyf(replyNoProactivity)
		return nil
	}
	was, err := s.Disable(ctx, inv.UserID)
	if err != nil {
		return err
	}
	if !was {
		inv.Replyf("Proactive messages were already off.")
		return nil
	}
	inv.Replyf("Proactive messages: off. Turn back on: /writeme")
	return nil
}

type pauseCmd struct {
	meta
	d Deps
}

func (c *pauseCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	s := c.d.settings()
	if s == nil {
		inv.Replyf(replyNoProactivity)
		return nil
	}
	if inv.Arg(0) == "" {
		inv.Replyf("Usage: /writeme_pause 3h (up to 24h) or /writeme_pause 2d (up to 7d)")
		return nil
	}
	_, err := s.Pause(ctx, inv.UserID, inv.Arg(0))
	switch {
	case errors.Is(err, initiation.ErrInvalidPause):
		inv.Replyf("Usage: /writeme_pause 3h (up to 24h) or /writeme_pause 2d (up to 7d)")
		return nil
	case errors.Is(err, initiation.ErrNotEnabled):
		inv.Replyf("Proactive messages are off. Turn on: /writeme")
		return nil
	case err != nil:
		return err
	}
	status, err := s.Status(ctx, inv.UserID)
	if err != nil {
		return err
	}
	inv.Replyf("%s", status)
	return nil
}

type statusCmd struct {
	meta
	d Deps
}

func (c *statusCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	s := c.d.settings()
	if s == nil {
		inv.Replyf(replyNoProactivity)
		return nil
	}
	status, err := s.Status(ctx, inv.UserID)
	if err != nil {
		return err
	}
	inv.Replyf("%s", status)
	return nil
}
