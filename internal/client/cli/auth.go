package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophnotes/internal/common"
)

// getSimpleText, getPassword and getConfirm are indirections used to
// facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword
var getConfirm = GetConfirm

// credentials takes the user name from args or asks for it, then asks for
// the password. The caller wipes the password.
func (a *App) credentials(args []string) (string, []byte, error) {
	var userName string
	if len(args) > 0 {
		userName = args[0]
	} else {
		var err error
		userName, err = getSimpleText(a.reader, "Enter user name", a.out)
		if err != nil {
			return "", nil, err
		}
	}
	if userName == "" {
		return "", nil, fmt.Errorf("%w: empty user name", common.ErrInvalidArgument)
	}

	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return "", nil, err
	}
	return userName, password, nil
}

// Register creates an account on the server. Only a verifier derived from
// the password is sent.
func (a *App) Register(ctx context.Context, args []string) error {
	userName, password, err := a.credentials(args)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.auth.Register(ctx, userName, password); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Success! Now log in.")
	return nil
}

// Login authenticates, keeps the session and starts automatic sync.
func (a *App) Login(ctx context.Context, args []string) error {
	userName, password, err := a.credentials(args)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.auth.Login(ctx, userName, password); err != nil {
		return err
	}

	a.userName = userName
	a.needsRecovery = false
	a.loggedIn.Store(true)
	a.setMode(ModeOnline)
	a.startSession(ctx)

	fmt.Fprintln(a.out, "Login successful")
	return nil
}

// Logout ends the session. "logout wipe" also empties the local database.
func (a *App) Logout(ctx context.Context, args []string) error {
	wipe := len(args) > 0 && args[0] == "wipe"
	if wipe {
		ok, err := getConfirm(a.reader, "Delete all local notes?", a.out)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	a.endSession()
	a.syncer.Stop()

	if err := a.auth.Logout(ctx, wipe); err != nil {
		return err
	}

	a.userName = ""
	a.loggedIn.Store(false)
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
