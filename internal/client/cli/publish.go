package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/client/monographs"
	"github.com/dmitrijs2005/gophnotes/internal/common"
)

// Publish handles "publish <id> [selfdestruct]". An empty password makes the
// monograph readable by anyone with the id.
func (a *App) Publish(ctx context.Context, args []string) error {
	id, err := a.resolveNote(ctx, args)
	if err != nil {
		return err
	}
	opts := monographs.PublishOptions{SelfDestruct: len(args) > 1 && args[1] == "selfdestruct"}

	password, err := getPassword("Protect with password (empty for none)", a.out)
	if err != nil {
		return err
	}
	opts.Password = string(password)
	common.WipeByteArray(password)

	publicID, err := a.monographs.Publish(ctx, id, opts)
	if err != nil {
		return err
	}
	a.requestUpload()

	fmt.Fprintln(a.out, "Published as", publicID)
	return nil
}

func (a *App) Unpublish(ctx context.Context, args []string) error {
	id, err := a.resolveNote(ctx, args)
	if err != nil {
		return err
	}
	if err := a.monographs.Unpublish(ctx, id); err != nil {
		return err
	}
	a.requestUpload()
	fmt.Fprintln(a.out, "Unpublished")
	return nil
}

// View shows a monograph as an anonymous reader sees it. The password is
// asked for up front: a self-destructing monograph is gone after the first
// read, so there is no second attempt.
func (a *App) View(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: usage view <id>", common.ErrInvalidArgument)
	}

	password, err := getPassword("Monograph password (empty for none)", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	p, err := a.monographs.View(ctx, args[0], string(password))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s (published %s)\n\n%s\n", p.Title,
		time.UnixMilli(p.DatePublished).Format(time.DateTime), p.Content)
	return nil
}
