// Package security loads the listener's TLS certificate and keeps it fresh.
// Private keys may be PEM-encrypted; the passphrase comes from config or
// the command line.
package security

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zlx-network/swarmd/internal/domain"
)

// CertReloader serves the current certificate to the TLS stack and swaps it
// when the files on disk change.
type CertReloader struct {
	certFile   string
	keyFile    string
	passphrase []byte

	mu       sync.RWMutex
	cert     *tls.Certificate
	notAfter time.Time
}

// NewCertReloader loads the key pair once. Any failure wraps
// domain.ErrCertificateLoad and is fatal at startup.
func NewCertReloader(certFile, keyFile, passphrase string) (*CertReloader, error) {
	c := &CertReloader{
		certFile: certFile,
		keyFile:  keyFile,
	}
	if passphrase != "" {
		c.passphrase = []byte(passphrase)
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads both files. On failure the previous certificate stays in
// service.
func (c *CertReloader) Reload() error {
	certPEM, err := os.ReadFile(c.certFile)
	if err != nil {
		return fmt.Errorf("%w: read cert: %w", domain.ErrCertificateLoad, err)
	}
	keyPEM, err := os.ReadFile(c.keyFile)
	if err != nil {
		return fmt.Errorf("%w: read key: %w", domain.ErrCertificateLoad, err)
	}
	cert, leaf, err := LoadKeyPair(certPEM, keyPEM, c.passphrase)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCertificateLoad, err)
	}

	c.mu.Lock()
	c.cert = &cert
	c.notAfter = leaf.NotAfter
	c.mu.Unlock()
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (c *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cert == nil {
		return nil, domain.ErrNoCertificate
	}
	return c.cert, nil
}

// NotAfter returns the expiry of the certificate in service.
func (c *CertReloader) NotAfter() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notAfter
}

// TLSConfig returns a server config that always presents the current
// certificate.
func (c *CertReloader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: c.GetCertificate,
	}
}

// Watch reloads the pair whenever either file is written or replaced. The
// parent directories are watched rather than the files so that
// rename-into-place deployments are seen. Watch returns once the watcher is
// registered; reloading continues until ctx is done.
func (c *CertReloader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	dirs := map[string]bool{
		filepath.Dir(c.certFile): true,
		filepath.Dir(c.keyFile):  true,
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	go c.watchLoop(ctx, watcher)
	return nil
}

func (c *CertReloader) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	watched := map[string]bool{
		filepath.Clean(c.certFile): true,
		filepath.Clean(c.keyFile):  true,
	}
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if err := c.Reload(); err != nil {
				// A pair mid-rotation fails until both halves land.
				log.Printf("[security] reload %s: %v", filepath.Base(event.Name), err)
				continue
			}
			log.Printf("[security] certificate reloaded, expires %s", c.NotAfter().Format(time.RFC3339))
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[security] watcher error: %v", err)
		}
	}
}

// LoadKeyPair parses a PEM certificate chain and private key, decrypting
// the key with passphrase when its PEM block is encrypted. It also returns
// the parsed leaf.
func LoadKeyPair(certPEM, keyPEM, passphrase []byte) (tls.Certificate, *x509.Certificate, error) {
	keyPEM, err := decryptKey(keyPEM, passphrase)
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("parse leaf: %w", err)
	}
	cert.Leaf = leaf
	return cert, leaf, nil
}

func decryptKey(keyPEM, passphrase []byte) ([]byte, error) {
	rest := keyPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return keyPEM, nil
		}
		if !strings.HasSuffix(block.Type, "PRIVATE KEY") {
			continue
		}
		if block.Type == "ENCRYPTED PRIVATE KEY" {
			return nil, errors.New("PKCS#8 encrypted keys are not supported, convert with openssl")
		}
		//nolint:staticcheck // openssl traditional format
		if !x509.IsEncryptedPEMBlock(block) {
			return keyPEM, nil
		}
		if len(passphrase) == 0 {
			return nil, errors.New("private key is encrypted and no passphrase was given")
		}
		//nolint:staticcheck
		der, err := x509.DecryptPEMBlock(block, passphrase)
		if err != nil {
			return nil, fmt.Errorf("decrypt private key: %w", err)
		}
		return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
	}
}
