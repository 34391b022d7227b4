package credstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize = 24
	keyInfo   = "betul-abla-portal credstore v1"
)

type fileBackend struct {
	path string
	key  *[32]byte // nil when documents are stored in the clear
}

// NewFileStore persists one session's document under dir. The namespace is
// hashed into the file name so arbitrary session ids are safe on disk. When
// secret is non-empty the document is sealed with NaCl secretbox.
func NewFileStore(dir, namespace, secret string) (Store, error) {
	if namespace == "" {
		return nil, fmt.Errorf("[credstore NewFileStore] namespace is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("[credstore NewFileStore] create %s: %w", dir, err)
	}

	sum := sha256.Sum256([]byte(namespace))
	b := &fileBackend{path: filepath.Join(dir, hex.EncodeToString(sum[:16])+".cred")}

	if secret != "" {
		key, err := deriveKey(secret)
		if err != nil {
			return nil, fmt.Errorf("[credstore NewFileStore] derive key: %w", err)
		}
		b.key = key
	}
	return newDocStore(b), nil
}

func deriveKey(secret string) (*[32]byte, error) {
	var key [32]byte
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key[:]); err != nil {
		return nil, err
	}
	return &key, nil
}

func (f *fileBackend) read(context.Context) (*document, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return &document{}, nil
	}
	if err != nil {
		return nil, err
	}

	if f.key != nil {
		if len(data) < nonceSize {
			return nil, fmt.Errorf("sealed document too short")
		}
		var nonce [nonceSize]byte
		copy(nonce[:], data[:nonceSize])
		opened, ok := secretbox.Open(nil, data[nonceSize:], &nonce, f.key)
		if !ok {
			return nil, fmt.Errorf("sealed document failed authentication")
		}
		data = opened
	}

	doc := &document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// write replaces the document through a temp file and rename so readers see
// either the old or the new pair, never a mix.
func (f *fileBackend) write(_ context.Context, doc *document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	if f.key != nil {
		var nonce [nonceSize]byte
		if _, err := rand.Read(nonce[:]); err != nil {
			return err
		}
		data = secretbox.Seal(nonce[:], data, &nonce, f.key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *fileBackend) clear(context.Context) error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
