package sentiment

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"vibecheck/internal/domain"
)

// LoaderFunc performs the expensive model load.
type LoaderFunc func(ctx context.Context) (domain.Classifier, error)

const DefaultLoadTimeout = 5 * time.Minute

// Lazy is a process-wide classifier handle that loads its model on first
// use. Concurrent first callers share a single load and then the instance.
// The load is detached from the callers: a caller whose context ends stops
// waiting, but the load runs to completion (bounded by the load timeout)
// and serves later calls. A failed load is not remembered; the next call
// tries again.
type Lazy struct {
	load        LoaderFunc
	loadTimeout time.Duration

	group singleflight.Group
	inst  atomic.Pointer[loaded]
}

type loaded struct{ c domain.Classifier }

var _ domain.Classifier = (*Lazy)(nil)

type LazyOption func(*Lazy)

// WithLoadTimeout bounds a single model load.
func WithLoadTimeout(d time.Duration) LazyOption {
	return func(l *Lazy) {
		if d > 0 {
			l.loadTimeout = d
		}
	}
}

func NewLazy(load LoaderFunc, opts ...LazyOption) *Lazy {
	l := &Lazy{load: load, loadTimeout: DefaultLoadTimeout}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Get returns the loaded classifier, starting the load if needed and
// waiting for it until ctx is done.
func (l *Lazy) Get(ctx context.Context) (domain.Classifier, error) {
	if p := l.inst.Load(); p != nil {
		return p.c, nil
	}

	ch := l.group.DoChan("model", func() (any, error) {
		if p := l.inst.Load(); p != nil {
			return p.c, nil
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.loadTimeout)
		defer cancel()

		start := time.Now()
		log.Info().Msg("loading sentiment model")
		c, err := l.load(lctx)
		if err != nil {
			log.Error().Err(err).Dur("took", time.Since(start)).Msg("sentiment model load failed")
			return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
		l.inst.Store(&loaded{c: c})
		log.Info().Dur("took", time.Since(start)).Msg("sentiment model ready")
		return c, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(domain.Classifier), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for model load: %w", ErrModelUnavailable, ctx.Err())
	}
}

// Loaded reports whether the model has been loaded.
func (l *Lazy) Loaded() bool { return l.inst.Load() != nil }

func (l *Lazy) Classify(ctx context.Context, text string) (domain.Classification, error) {
	c, err := l.Get(ctx)
	if err != nil {
		return domain.Classification{}, err
	}
	return c.Classify(ctx, text)
}

func (l *Lazy) ClassifyBatch(ctx context.Context, texts []string) ([]domain.Classification, error) {
	c, err := l.Get(ctx)
	if err != nil {
		return nil, err
	}
	return c.ClassifyBatch(ctx, texts)
}
