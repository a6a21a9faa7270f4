package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophnotes/internal/client/syncx"
	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// parseSyncArgs reads "sync [send|fetch|full] [force]".
func parseSyncArgs(args []string) (syncx.Options, error) {
	opts := syncx.Options{Type: syncx.Full}
	for _, arg := range args {
		switch arg {
		case "send":
			opts.Type = syncx.Send
		case "fetch":
			opts.Type = syncx.Fetch
		case "full":
			opts.Type = syncx.Full
		case "force":
			opts.Force = true
		default:
			return opts, fmt.Errorf("%w: unknown sync option %q", common.ErrInvalidArgument, arg)
		}
	}
	return opts, nil
}

// Sync runs a sync in the foreground and reports what it moved.
func (a *App) Sync(ctx context.Context, args []string) error {
	opts, err := parseSyncArgs(args)
	if err != nil {
		return err
	}

	res, err := a.syncer.Sync(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "uploaded %d, downloaded %d", res.Uploaded, res.Downloaded)
	if res.Conflicts > 0 {
		fmt.Fprintf(a.out, ", %d conflict(s)", res.Conflicts)
	}
	fmt.Fprintln(a.out)
	return nil
}

func (a *App) Conflicts(ctx context.Context, args []string) error {
	list, err := a.conflicts.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No conflicts")
		return nil
	}
	for _, c := range list {
		fmt.Fprintf(a.out, "%s  %s\n", shortID(c.NoteID), c.Title)
	}
	return nil
}

// conflictedNote resolves a note id among the conflicted notes, which may
// include notes that are not listed otherwise.
func (a *App) conflictedNote(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%w: note id required", common.ErrInvalidArgument)
	}
	list, err := a.conflicts.List(ctx)
	if err != nil {
		return "", err
	}
	var found []string
	for _, c := range list {
		if strings.HasPrefix(c.NoteID, args[0]) {
			found = append(found, c.NoteID)
		}
	}
	if len(found) != 1 {
		return "", fmt.Errorf("no single conflicted note matches %s: %w", args[0], common.ErrorNotFound)
	}
	return found[0], nil
}

func (a *App) Diff(ctx context.Context, args []string) error {
	id, err := a.conflictedNote(ctx, args)
	if err != nil {
		return err
	}
	diffs, err := a.conflicts.Diff(ctx, id)
	if err != nil {
		return err
	}

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			fmt.Fprintf(a.out, "[-local: %s]", d.Text)
		case diffmatchpatch.DiffInsert:
			fmt.Fprintf(a.out, "[+remote: %s]", d.Text)
		default:
			fmt.Fprint(a.out, d.Text)
		}
	}
	fmt.Fprintln(a.out)
	return nil
}

// Resolve handles "resolve <id> local|remote [copy]".
func (a *App) Resolve(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: usage resolve <id> local|remote [copy]", common.ErrInvalidArgument)
	}
	id, err := a.conflictedNote(ctx, args)
	if err != nil {
		return err
	}

	var keep syncx.Side
	switch args[1] {
	case "local":
		keep = syncx.KeepLocal
	case "remote":
		keep = syncx.KeepRemote
	default:
		return fmt.Errorf("%w: keep local or remote, not %q", common.ErrInvalidArgument, args[1])
	}
	copyOther := len(args) > 2 && args[2] == "copy"

	copyID, err := a.conflicts.Resolve(ctx, id, keep, copyOther)
	if err != nil {
		return err
	}
	a.requestUpload()

	fmt.Fprintln(a.out, "Resolved")
	if copyID != "" {
		fmt.Fprintln(a.out, "Other version saved as", copyID)
	}
	return nil
}
