// Package keys manages the device's key hierarchy:
//
//	database key  - encrypts the local store; lives in the SecureStore, or
//	                when app lock is on, only as an envelope sealed with the
//	                app-lock password.
//	user key      - derived from the account password; encrypts synced items.
//	                Persisted as an envelope sealed with the database key.
//
// Plaintext keys exist only in the SecretCache.
package keys

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/cryptox"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
)

const (
	secureDatabaseKey = "dbKey"

	DatabaseKeyCipher = "databaseKeyCipher"
	UserKeyCipher     = "userKeyCipher"
	AppLockCipher     = "appLockCipher"
	RecoveryCipher    = "recoveryKeyCipher"

	databaseSalt = "SNuzOcEK3amoqL0WvPeKqw"
)

// ErrRecoveryRequired means the secure store lost the database key of a
// store that already holds data. Logging in restores it.
var ErrRecoveryRequired = fmt.Errorf("%w: database key missing, log in to recover", common.ErrAuthRequired)

// ErrWrongAppLockPassword is returned when the app-lock verifier rejects a
// password.
var ErrWrongAppLockPassword = fmt.Errorf("%w: wrong app lock password", common.ErrDecryptionFailed)

// CipherStore persists envelopes by name. *store.KV satisfies it.
type CipherStore interface {
	Read(ctx context.Context, key string, v any) (bool, error)
	Write(ctx context.Context, key string, v any) error
	Remove(ctx context.Context, key string) error
}

type Manager struct {
	crypto   *cryptox.Provider
	fallback *cryptox.Provider
	secure   SecureStore
	ciphers  CipherStore
	cache    *SecretCache
	logger   logging.Logger
}

// NewManager wires a Manager. Password-derived keys use p's KDF first and
// legacy only when that fails to decrypt.
func NewManager(p *cryptox.Provider, legacy cryptox.KDFParams, secure SecureStore, ciphers CipherStore, cache *SecretCache, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Manager{
		crypto:   p,
		fallback: p.WithKDFParams(legacy),
		secure:   secure,
		ciphers:  ciphers,
		cache:    cache,
		logger:   logger.With("module", "keys"),
	}
}

func clone(b []byte) []byte { return append([]byte(nil), b...) }

// DatabaseKey returns the key of the local store. Lookup order: cache, the
// app-lock envelope (when appLockPassword is given), the secure store.
// If none exists yet a new key is generated and stored.
func (m *Manager) DatabaseKey(ctx context.Context, appLockPassword []byte) ([]byte, error) {
	if k := m.cache.databaseKey(); k != nil {
		return clone(k), nil
	}

	if appLockPassword != nil {
		var env cryptox.Envelope
		found, err := m.ciphers.Read(ctx, DatabaseKeyCipher, &env)
		if err != nil {
			return nil, err
		}
		if found {
			key, err := m.openWithPassword(ctx, appLockPassword, &env, DatabaseKeyCipher)
			if err != nil {
				return nil, err
			}
			m.cache.setDatabaseKey(key)
			return clone(key), nil
		}
	}

	key, found, err := m.secure.Get(ctx, secureDatabaseKey)
	if err != nil {
		return nil, fmt.Errorf("secure store: %w", err)
	}
	if found {
		m.cache.setDatabaseKey(key)
		return clone(key), nil
	}

	if enabled, err := m.AppLockEnabled(ctx); err != nil {
		return nil, err
	} else if enabled {
		return nil, fmt.Errorf("%w: app lock password required", common.ErrAuthRequired)
	}
	if recoverable, err := m.hasRecovery(ctx); err != nil {
		return nil, err
	} else if recoverable {
		return nil, ErrRecoveryRequired
	}

	secret, err := common.MakeRandHexString(40)
	if err != nil {
		return nil, err
	}
	key = m.crypto.DeriveKey([]byte(secret), []byte(databaseSalt))
	if err := m.secure.Set(ctx, secureDatabaseKey, key); err != nil {
		return nil, fmt.Errorf("secure store: %w", err)
	}
	m.logger.Info(ctx, "generated new database key")
	m.cache.setDatabaseKey(key)
	return clone(key), nil
}

// openWithPassword tries the primary KDF and, only on a decryption failure,
// the legacy one. A legacy hit is re-sealed with the primary KDF.
func (m *Manager) openWithPassword(ctx context.Context, password []byte, env *cryptox.Envelope, name string) ([]byte, error) {
	plain, err := m.crypto.DecryptWithPassword(password, env)
	if err == nil {
		return plain, nil
	}
	if !errors.Is(err, common.ErrDecryptionFailed) {
		return nil, err
	}

	plain, ferr := m.fallback.DecryptWithPassword(password, env)
	if ferr != nil {
		return nil, err
	}
	m.logger.Info(ctx, "upgrading cipher to current kdf", "cipher", name)
	if upgraded, uerr := m.crypto.EncryptWithPassword(password, plain, "key"); uerr == nil {
		if werr := m.ciphers.Write(ctx, name, upgraded); werr != nil {
			m.logger.Warn(ctx, "cipher upgrade not persisted", "cipher", name, "error", werr)
		}
	}
	return plain, nil
}

// AppLockEnabled reports whether the database key is password protected.
func (m *Manager) AppLockEnabled(ctx context.Context) (bool, error) {
	var env cryptox.Envelope
	return m.ciphers.Read(ctx, DatabaseKeyCipher, &env)
}

// EnableAppLock seals the database key with password and removes the
// plaintext copy from the secure store.
func (m *Manager) EnableAppLock(ctx context.Context, password []byte) error {
	key, err := m.DatabaseKey(ctx, nil)
	if err != nil {
		return err
	}
	env, err := m.crypto.EncryptWithPassword(password, key, "key")
	if err != nil {
		return err
	}
	verifier, err := m.crypto.EncryptWithPassword(password, common.GenerateRandByteArray(32), "verifier")
	if err != nil {
		return err
	}
	if err := m.ciphers.Write(ctx, DatabaseKeyCipher, env); err != nil {
		return err
	}
	if err := m.ciphers.Write(ctx, AppLockCipher, verifier); err != nil {
		return err
	}
	return m.secure.Delete(ctx, secureDatabaseKey)
}

// DisableAppLock moves the database key back into the secure store.
func (m *Manager) DisableAppLock(ctx context.Context, password []byte) error {
	ok, err := m.ValidateAppLockPassword(ctx, password)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWrongAppLockPassword
	}
	key, err := m.DatabaseKey(ctx, password)
	if err != nil {
		return err
	}
	if err := m.secure.Set(ctx, secureDatabaseKey, key); err != nil {
		return err
	}
	if err := m.ciphers.Remove(ctx, DatabaseKeyCipher); err != nil {
		return err
	}
	return m.ciphers.Remove(ctx, AppLockCipher)
}

// ValidateAppLockPassword checks password against the app-lock verifier.
// Without a verifier every password is valid.
func (m *Manager) ValidateAppLockPassword(ctx context.Context, password []byte) (bool, error) {
	var env cryptox.Envelope
	found, err := m.ciphers.Read(ctx, AppLockCipher, &env)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	plain, err := m.openWithPassword(ctx, password, &env, AppLockCipher)
	if errors.Is(err, common.ErrDecryptionFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	common.WipeByteArray(plain)
	return true, nil
}

// DeriveUserKey derives the user key from the account password and salt and
// persists it sealed with the database key.
func (m *Manager) DeriveUserKey(ctx context.Context, password, salt []byte) ([]byte, error) {
	key := m.crypto.DeriveKey(password, salt)
	if err := m.StoreUserKey(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// StoreUserKey persists an already derived user key, sealed with the
// database key.
func (m *Manager) StoreUserKey(ctx context.Context, key []byte) error {
	dbKey, err := m.DatabaseKey(ctx, nil)
	if err != nil {
		return err
	}
	env, err := m.crypto.Encrypt(dbKey, key, "key")
	if err != nil {
		return err
	}
	if err := m.ciphers.Write(ctx, UserKeyCipher, env); err != nil {
		return err
	}
	m.cache.setUserKey(clone(key))
	return nil
}

// UserKey returns the user key or common.ErrAuthRequired when there is none.
func (m *Manager) UserKey(ctx context.Context) ([]byte, error) {
	if k := m.cache.userKeyValue(); k != nil {
		return clone(k), nil
	}
	var env cryptox.Envelope
	found, err := m.ciphers.Read(ctx, UserKeyCipher, &env)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.ErrAuthRequired
	}
	dbKey, err := m.DatabaseKey(ctx, nil)
	if err != nil {
		return nil, err
	}
	key, err := m.crypto.Decrypt(dbKey, &env)
	if err != nil {
		return nil, err
	}
	m.cache.setUserKey(key)
	return clone(key), nil
}

// RemoveUserKey forgets the user key everywhere.
func (m *Manager) RemoveUserKey(ctx context.Context) error {
	m.cache.clearUserKey()
	return m.ciphers.Remove(ctx, UserKeyCipher)
}

// RecoveryEnvelope seals the database key with the user key so it can be
// restored after the secure store is lost.
func (m *Manager) RecoveryEnvelope(ctx context.Context) (*cryptox.Envelope, error) {
	userKey, err := m.UserKey(ctx)
	if err != nil {
		return nil, err
	}
	dbKey, err := m.DatabaseKey(ctx, nil)
	if err != nil {
		return nil, err
	}
	return m.crypto.Encrypt(userKey, dbKey, "key")
}

// SaveRecovery stores the recovery envelope next to the data it unlocks.
// It is sealed with the user key, so only the account password opens it.
func (m *Manager) SaveRecovery(ctx context.Context) error {
	env, err := m.RecoveryEnvelope(ctx)
	if err != nil {
		return err
	}
	return m.ciphers.Write(ctx, RecoveryCipher, env)
}

func (m *Manager) hasRecovery(ctx context.Context) (bool, error) {
	var env cryptox.Envelope
	return m.ciphers.Read(ctx, RecoveryCipher, &env)
}

// RecoverDatabaseKey restores a lost database key from the saved recovery
// envelope using userKey. It returns nil when nothing needed restoring.
func (m *Manager) RecoverDatabaseKey(ctx context.Context, userKey []byte) ([]byte, error) {
	if k := m.cache.databaseKey(); k != nil {
		return nil, nil
	}
	if _, found, err := m.secure.Get(ctx, secureDatabaseKey); err != nil || found {
		return nil, err
	}
	if enabled, err := m.AppLockEnabled(ctx); err != nil || enabled {
		return nil, err
	}

	var env cryptox.Envelope
	found, err := m.ciphers.Read(ctx, RecoveryCipher, &env)
	if err != nil || !found {
		return nil, err
	}
	if err := m.RestoreFromRecovery(ctx, &env, userKey); err != nil {
		return nil, fmt.Errorf("recover database key: %w", err)
	}
	m.logger.Info(ctx, "database key restored from recovery envelope")
	return m.DatabaseKey(ctx, nil)
}

// RestoreFromRecovery puts the database key from env back into the secure
// store.
func (m *Manager) RestoreFromRecovery(ctx context.Context, env *cryptox.Envelope, userKey []byte) error {
	dbKey, err := m.crypto.Decrypt(userKey, env)
	if err != nil {
		return err
	}
	if err := m.secure.Set(ctx, secureDatabaseKey, dbKey); err != nil {
		return err
	}
	m.cache.setDatabaseKey(dbKey)
	return nil
}
