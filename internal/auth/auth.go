// Package auth validates the shared secret that promotes a peer to operator.
//
// It does not decide who the operator is; callers record that themselves.
package auth

import (
	"crypto/subtle"
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates a presented secret.
type Validator interface {
	Validate(secret string) error
}

// SharedSecret keeps a single operator secret in guarded memory and compares
// presented values in constant time. An empty secret never validates.
type SharedSecret struct {
	mu  sync.Mutex
	buf *memguard.LockedBuffer
}

// NewSharedSecret copies secret into a locked buffer.
func NewSharedSecret(secret string) *SharedSecret {
	if secret == "" {
		return &SharedSecret{}
	}
	return &SharedSecret{buf: memguard.NewBufferFromBytes([]byte(secret))}
}

func (s *SharedSecret) Validate(secret string) error {
	if s == nil {
		return ErrUnauthorized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil || s.buf.Size() == 0 {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(s.buf.Bytes(), []byte(secret)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Destroy wipes the secret. Later validations fail.
func (s *SharedSecret) Destroy() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf != nil {
		s.buf.Destroy()
		s.buf = nil
	}
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(secret string) error

func (f FuncValidator) Validate(secret string) error {
	return f(secret)
}
