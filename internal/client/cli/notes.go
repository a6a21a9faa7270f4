package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/common"
)

var getMultiline = GetMultiline

const shortIDLength = 8

func shortID(id string) string {
	if len(id) > shortIDLength {
		return id[:shortIDLength]
	}
	return id
}

// resolveNote turns a full id or a unique id prefix into a note id.
func (a *App) resolveNote(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", fmt.Errorf("%w: note id required", common.ErrInvalidArgument)
	}
	prefix := args[0]

	notes, err := a.notes.List(ctx)
	if err != nil {
		return "", err
	}
	var found []string
	for _, n := range notes {
		if n.ID == prefix {
			return n.ID, nil
		}
		if strings.HasPrefix(n.ID, prefix) {
			found = append(found, n.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("note %s: %w", prefix, common.ErrorNotFound)
	case 1:
		return found[0], nil
	}
	return "", fmt.Errorf("%w: id prefix %s is ambiguous", common.ErrInvalidArgument, prefix)
}

func (a *App) List(ctx context.Context, args []string) error {
	notes, err := a.notes.List(ctx)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		fmt.Fprintln(a.out, "No notes yet, type 'add' to create one")
		return nil
	}

	for _, n := range notes {
		flags := ""
		if n.Locked {
			flags += " [locked]"
		}
		if n.Conflicted {
			flags += " [conflict]"
		}
		if !n.Synced {
			flags += " *"
		}
		fmt.Fprintf(a.out, "%s  %-30s %s%s\n", shortID(n.ID), n.Title,
			time.UnixMilli(n.DateModified).Format(time.DateTime), flags)
	}
	return nil
}

func (a *App) Add(ctx context.Context, args []string) error {
	title := strings.Join(args, " ")
	if title == "" {
		var err error
		if title, err = getSimpleText(a.reader, "Enter title", a.out); err != nil {
			return err
		}
	}
	content, err := getMultiline(a.reader, "Enter note text", a.out)
	if err != nil {
		return err
	}

	note, err := a.notes.AddNote(ctx, title, content)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Created", note.ID)
	return nil
}

func (a *App) Show(ctx context.Context, args []string) error {
	id, err := a.resolveNote(ctx, args)
	if err != nil {
		return err
	}
	v, err := a.notes.Get(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s\n%s\n", v.Note.Title, strings.Repeat("-", len(v.Note.Title)))
	if v.Note.Locked {
		fmt.Fprintln(a.out, "(locked)")
	}
	if v.Content != nil {
		fmt.Fprintln(a.out, v.Content.Data)
	}
	if len(v.Tags) > 0 {
		fmt.Fprintln(a.out, "tags:", strings.Join(v.Tags, ", "))
	}
	if len(v.Colors) > 0 {
		fmt.Fprintln(a.out, "colors:", strings.Join(v.Colors, ", "))
	}
	if m, err := a.monographs.Get(ctx, id); err == nil {
		line := "published as " + m.ID
		if m.SelfDestruct {
			line += " (self-destruct)"
		}
		fmt.Fprintln(a.out, line)
	}
	if v.Note.Conflicted {
		fmt.Fprintln(a.out, "this note has a conflict, see 'diff' and 'resolve'")
	}
	return nil
}

func (a *App) Edit(ctx context.Context, args []string) error {
	id, err := a.resolveNote(ctx, args)
	if err != nil {
		return err
	}
	content, err := getMultiline(a.reader, "Enter new note text", a.out)
	if err != nil {
		return err
	}
	return a.notes.UpdateContent(ctx, id, content)
}

func (a *App) Rename(ctx context.Context, args []string) error {
	id, err := a.resolveNote(ctx, args)
	if err != nil {
		return err
	}
	title := strings.Join(args[1:], " ")
	if title == "" {
		return fmt.Errorf("%w: usage rename <id> <title>", common.ErrInvalidArgument)
	}
	return a.notes.Rename(ctx, id, title)
}

func (a *App) Delete(ctx context.Context, args []string) error {
	id, err := a.resolveNote(ctx, args)
	if err != nil {
		return err
	}
	ok, err := getConfirm(a.reader, "Delete note "+shortID(id)+"?", a.out)
	if err != nil || !ok {
		return err
	}
	return a.notes.Delete(ctx, id)
}

// relation handles "tag", "untag" and "color", which all take <id> <title>.
func (a *App) relation(ctx context.Context, args []string, usage string, fn func(ctx context.Context, noteID, title string) error) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: usage %s", common.ErrInvalidArgument, usage)
	}
	id, err := a.resolveNote(ctx, args)
	if err != nil {
		return err
	}
	return fn(ctx, id, strings.Join(args[1:], " "))
}

func (a *App) Tag(ctx context.Context, args []string) error {
	return a.relation(ctx, args, "tag <id> <tag>", a.notes.AddTag)
}

func (a *App) Untag(ctx context.Context, args []string) error {
	return a.relation(ctx, args, "untag <id> <tag>", a.notes.RemoveTag)
}

func (a *App) Color(ctx context.Context, args []string) error {
	return a.relation(ctx, args, "color <id> <color>", a.notes.AddColor)
}

func (a *App) Notebook(ctx context.Context, args []string) error {
	title := strings.Join(args, " ")
	if title == "" {
		return fmt.Errorf("%w: usage notebook <title>", common.ErrInvalidArgument)
	}
	nb, err := a.notes.CreateNotebook(ctx, title)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Created notebook", nb.ID)
	return nil
}

func (a *App) Lock(ctx context.Context, args []string) error {
	return a.setLocked(ctx, args, true)
}

func (a *App) Unlock(ctx context.Context, args []string) error {
	return a.setLocked(ctx, args, false)
}

func (a *App) setLocked(ctx context.Context, args []string, locked bool) error {
	id, err := a.resolveNote(ctx, args)
	if err != nil {
		return err
	}
	return a.notes.SetLocked(ctx, id, locked)
}
