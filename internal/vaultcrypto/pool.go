package vaultcrypto

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent Argon2id derivations, each of which holds 64 MiB.
// Work runs off the caller's goroutine so a cancelled context returns early;
// the derivation itself still finishes and releases its slot.
type Pool struct {
	sem *semaphore.Weighted
}

func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Seal(ctx context.Context, secret, plaintext []byte) (Envelope, error) {
	var env Envelope
	err := p.Do(ctx, func() error {
		var err error
		env, err = Seal(secret, plaintext)
		return err
	})
	if err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (p *Pool) Open(ctx context.Context, secret []byte, env Envelope) ([]byte, error) {
	var plaintext []byte
	err := p.Do(ctx, func() error {
		var err error
		plaintext, err = Open(secret, env)
		return err
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
