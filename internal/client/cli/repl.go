package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface defines the command surface the REPL dispatches to.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context, args []string) error
	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context, args []string) error
	AppLock(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Add(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	Rename(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Tag(ctx context.Context, args []string) error
	Untag(ctx context.Context, args []string) error
	Color(ctx context.Context, args []string) error
	Notebook(ctx context.Context, args []string) error
	Lock(ctx context.Context, args []string) error
	Unlock(ctx context.Context, args []string) error
	Publish(ctx context.Context, args []string) error
	Unpublish(ctx context.Context, args []string) error
	View(ctx context.Context, args []string) error
	Sync(ctx context.Context, args []string) error
	Conflicts(ctx context.Context, args []string) error
	Diff(ctx context.Context, args []string) error
	Resolve(ctx context.Context, args []string) error
}

const (
	helpLoggedOut = "Available commands: register, login, view <id>, applock on|off, exit"
	helpLoggedIn  = "Available commands: (l)ist, add, show <id>, edit <id>, rename <id> <title>, delete <id>,\n" +
		"  tag|untag <id> <tag>, color <id> <color>, notebook <title>, lock|unlock <id>,\n" +
		"  publish <id> [selfdestruct], unpublish <id>, view <id>,\n" +
		"  sync [send|fetch] [force], conflicts, diff <id>, resolve <id> local|remote [copy],\n" +
		"  applock on|off, logout [wipe], exit"
)

// runREPL reads commands from scanner until EOF or "exit" and dispatches
// them to a. Note ids may be abbreviated to any unique prefix. Errors are
// printed and the loop carries on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner, w io.Writer) {
	for {
		fmt.Fprintf(w, "gn%s> ", statusFn())
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(w, helpLoggedIn)
			} else {
				fmt.Fprintln(w, helpLoggedOut)
			}

		case "register":
			err = a.Register(ctx, args)
		case "login":
			err = a.Login(ctx, args)
		case "view":
			err = a.View(ctx, args)
		case "applock":
			err = a.AppLock(ctx, args)

		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return

		default:
			if !a.isLoggedIn() {
				fmt.Fprintln(w, "Unknown command or not logged in:", cmd)
				continue
			}
			err = dispatch(ctx, a, cmd, args, w)
		}

		if err != nil {
			fmt.Fprintln(w, "Error:", err)
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string, w io.Writer) error {
	switch cmd {
	case "logout":
		return a.Logout(ctx, args)
	case "l", "list":
		return a.List(ctx, args)
	case "add":
		return a.Add(ctx, args)
	case "show":
		return a.Show(ctx, args)
	case "edit":
		return a.Edit(ctx, args)
	case "rename":
		return a.Rename(ctx, args)
	case "delete":
		return a.Delete(ctx, args)
	case "tag":
		return a.Tag(ctx, args)
	case "untag":
		return a.Untag(ctx, args)
	case "color":
		return a.Color(ctx, args)
	case "notebook":
		return a.Notebook(ctx, args)
	case "lock":
		return a.Lock(ctx, args)
	case "unlock":
		return a.Unlock(ctx, args)
	case "publish":
		return a.Publish(ctx, args)
	case "unpublish":
		return a.Unpublish(ctx, args)
	case "sync":
		return a.Sync(ctx, args)
	case "conflicts":
		return a.Conflicts(ctx, args)
	case "diff":
		return a.Diff(ctx, args)
	case "resolve":
		return a.Resolve(ctx, args)
	}
	fmt.Fprintln(w, "Unknown command:", cmd)
	return nil
}

func (a *App) getStatus() string {
	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	if m := a.mode(); m != "" {
		s = s + string(m)
	}
	if s != "" {
		s = fmt.Sprintf(" (%s)", strings.TrimSpace(s))
	}
	return s
}
