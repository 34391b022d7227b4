package credstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/jrsteele09/betul-abla-portal/internal/errors"
	"github.com/redis/go-redis/v9"
)

// Opener hands out the Store of each session namespace.
type Opener interface {
	Open(namespace string) (Store, error)
	// Release is called once nothing in the process holds the namespace's
	// store any more. Backends keeping stores in memory drop the empty ones.
	Release(namespace string)
}

// OpenerConfig selects and parameterises a backend.
type OpenerConfig struct {
	Backend string // memory, file or redis
	Dir     string // file backend directory
	Secret  string // file backend sealing secret
	Redis   redis.Cmdable
	TTL     time.Duration // redis hash expiry
}

// OpenerFunc adapts a function to an Opener whose stores live outside the
// process, so Release has nothing to do.
type OpenerFunc func(namespace string) (Store, error)

func (f OpenerFunc) Open(namespace string) (Store, error) { return f(namespace) }

func (OpenerFunc) Release(string) {}

// NewOpener builds an Opener for the configured backend.
func NewOpener(cfg OpenerConfig) (Opener, error) {
	switch cfg.Backend {
	case "memory":
		return &memoryOpener{stores: map[string]Store{}}, nil
	case "file":
		dir := filepath.Join(cfg.Dir, "credentials")
		return OpenerFunc(func(namespace string) (Store, error) {
			return NewFileStore(dir, namespace, cfg.Secret)
		}), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("[credstore NewOpener] redis backend needs a client")
		}
		return OpenerFunc(func(namespace string) (Store, error) {
			return NewRedisStore(cfg.Redis, namespace, cfg.TTL)
		}), nil
	default:
		return nil, errors.Wrapf(errors.ErrUnsupported, "[credstore NewOpener] backend %q", cfg.Backend)
	}
}

// memoryOpener keeps one store per namespace. A released store holding a
// credential pair is kept so the session can be restored on the next visit.
type memoryOpener struct {
	mu     sync.Mutex
	stores map[string]Store
}

func (o *memoryOpener) Open(namespace string) (Store, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.stores[namespace]; ok {
		return s, nil
	}
	s := NewMemoryStore()
	o.stores[namespace] = s
	return s, nil
}

func (o *memoryOpener) Release(namespace string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.stores[namespace]
	if !ok {
		return
	}
	if tok, err := s.Credentials(context.Background()); err == nil && tok != nil {
		return
	}
	delete(o.stores, namespace)
}
