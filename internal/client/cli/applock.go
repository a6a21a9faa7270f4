package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophnotes/internal/client/keys"
	"github.com/dmitrijs2005/gophnotes/internal/common"
)

const appLockAttempts = 3

// unlockStore loads the database key and unlocks the local store. With app
// lock on the user is asked for the password. A lost key leaves the store
// locked until the next login restores it.
func (a *App) unlockStore(ctx context.Context) error {
	enabled, err := a.keys.AppLockEnabled(ctx)
	if err != nil {
		return err
	}

	var password []byte
	if enabled {
		password, err = a.askAppLockPassword(ctx)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(password)
	}

	dbKey, err := a.keys.DatabaseKey(ctx, password)
	if errors.Is(err, keys.ErrRecoveryRequired) {
		a.needsRecovery = true
		fmt.Fprintln(a.out, "Encryption key of this device is missing. Log in to recover your notes.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("database key: %w", err)
	}
	defer common.WipeByteArray(dbKey)

	a.store.Unlock(dbKey)
	a.needsRecovery = false
	return nil
}

func (a *App) askAppLockPassword(ctx context.Context) ([]byte, error) {
	for i := 0; i < appLockAttempts; i++ {
		password, err := getPassword("Enter app lock password", a.out)
		if err != nil {
			return nil, err
		}
		ok, err := a.keys.ValidateAppLockPassword(ctx, password)
		if err != nil {
			common.WipeByteArray(password)
			return nil, err
		}
		if ok {
			return password, nil
		}
		common.WipeByteArray(password)
		fmt.Fprintln(a.out, "Wrong password")
	}
	return nil, keys.ErrWrongAppLockPassword
}

// AppLock turns the app lock on or off: "applock on|off".
func (a *App) AppLock(ctx context.Context, args []string) error {
	if a.needsRecovery {
		return keys.ErrRecoveryRequired
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: applock on|off", common.ErrInvalidArgument)
	}

	enabled, err := a.keys.AppLockEnabled(ctx)
	if err != nil {
		return err
	}

	switch args[0] {
	case "on":
		if enabled {
			fmt.Fprintln(a.out, "App lock is already on")
			return nil
		}
		password, err := getPassword("Enter app lock password", a.out)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(password)
		if len(password) == 0 {
			return fmt.Errorf("%w: empty password", common.ErrInvalidArgument)
		}
		again, err := getPassword("Repeat app lock password", a.out)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(again)
		if !bytes.Equal(password, again) {
			return fmt.Errorf("%w: passwords do not match", common.ErrInvalidArgument)
		}
		if err := a.keys.EnableAppLock(ctx, password); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "App lock enabled")

	case "off":
		if !enabled {
			fmt.Fprintln(a.out, "App lock is already off")
			return nil
		}
		password, err := getPassword("Enter app lock password", a.out)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(password)
		if err := a.keys.DisableAppLock(ctx, password); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "App lock disabled")

	default:
		return fmt.Errorf("%w: usage: applock on|off", common.ErrInvalidArgument)
	}
	return nil
}
