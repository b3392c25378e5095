package oauth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/operia/operia/internal/errors"
	"github.com/operia/operia/internal/logging"
)

// SigningKey holds the App private key and hot-reloads it when the key file
// changes on disk, so rotated keys are picked up without a restart.
type SigningKey struct {
	path   string
	logger *logging.Logger

	mu  sync.RWMutex
	key *rsa.PrivateKey

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// LoadSigningKey reads and parses the PEM-encoded RSA private key at path.
func LoadSigningKey(path string, logger *logging.Logger) (*SigningKey, error) {
	sk := &SigningKey{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}
	if err := sk.reload(); err != nil {
		return nil, err
	}
	return sk, nil
}

// Key returns the current private key.
func (sk *SigningKey) Key() *rsa.PrivateKey {
	sk.mu.RLock()
	defer sk.mu.RUnlock()
	return sk.key
}

func (sk *SigningKey) reload() error {
	data, err := os.ReadFile(sk.path)
	if err != nil {
		return &errors.ErrFileRead{Path: sk.path, Err: err}
	}
	key, err := parseRSAPrivateKey(data)
	if err != nil {
		return &errors.ErrFileRead{Path: sk.path, Err: err}
	}

	sk.mu.Lock()
	sk.key = key
	sk.mu.Unlock()
	return nil
}

// StartWatcher watches the key file's directory and reloads on write or
// rename. Reload failures keep the previous key in place.
func (sk *SigningKey) StartWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(sk.path)); err != nil {
		watcher.Close()
		return err
	}
	sk.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != sk.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := sk.reload(); err != nil {
					sk.logger.Warn("failed to reload signing key", "path", sk.path, "error", err.Error())
					continue
				}
				sk.logger.Info("signing key reloaded", "path", sk.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				sk.logger.Warn("signing key watcher error", "error", err.Error())
			case <-sk.done:
				return
			}
		}
	}()
	return nil
}

// StopWatcher stops the file watcher.
func (sk *SigningKey) StopWatcher() {
	if sk.watcher != nil {
		close(sk.done)
		sk.watcher.Close()
		sk.watcher = nil
	}
}

func parseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("not a PKCS#1 or PKCS#8 private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PKCS#8 key is not RSA")
	}
	return key, nil
}
