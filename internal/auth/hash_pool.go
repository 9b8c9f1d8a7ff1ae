// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package auth

import (
	"context"
	"runtime"
	"time"

	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

// HashPool bounds how many password hash or verify computations run at
// once. Callers wait for a slot on their own goroutine, so requests that do
// not hash are never held up.
type HashPool struct {
	hasher  PasswordHasher
	sem     *semaphore.Weighted
	size    int
	observe func(time.Duration)
}

// NewHashPool wraps hasher with a pool of size slots. A size of zero or
// less uses runtime.NumCPU. observe, if not nil, receives the duration of
// every completed computation.
func NewHashPool(hasher PasswordHasher, size int, observe func(time.Duration)) *HashPool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &HashPool{
		hasher:  hasher,
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
		observe: observe,
	}
}

// Size returns the number of concurrent computations allowed.
func (p *HashPool) Size() int {
	return p.size
}

// Hash hashes password once a slot is free.
func (p *HashPool) Hash(ctx context.Context, password string) (string, error) {
	if err := p.acquire(ctx); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	start := time.Now()
	hash, err := p.hasher.Hash(password)
	p.record(start)
	return hash, err
}

// Verify checks password against hash once a slot is free.
func (p *HashPool) Verify(ctx context.Context, password, hash string) (bool, error) {
	if err := p.acquire(ctx); err != nil {
		return false, err
	}
	defer p.sem.Release(1)

	start := time.Now()
	ok, err := p.hasher.Verify(password, hash)
	p.record(start)
	return ok, err
}

// NeedsUpgrade delegates to the wrapped hasher; it is cheap and not pooled.
func (p *HashPool) NeedsUpgrade(hash string) bool {
	return p.hasher.NeedsUpgrade(hash)
}

func (p *HashPool) acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return oops.Code("AUTH_HASH_CANCELLED").
			With("operation", "wait for hash slot").
			Wrap(err)
	}
	return nil
}

func (p *HashPool) record(start time.Time) {
	if p.observe != nil {
		p.observe(time.Since(start))
	}
}
