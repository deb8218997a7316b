package chunkstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/bobg/syncr"
)

var _ Store = &Logging{}

// Logging decorates a Store, logging every operation at debug level
// through a *zap.Logger. It's meant to sit directly under cmd/syncr's -v
// flag, not to be left on by default.
type Logging struct {
	s   Store
	log *zap.Logger
}

// NewLogging wraps s, logging through log.
func NewLogging(s Store, log *zap.Logger) *Logging {
	return &Logging{s: s, log: log}
}

func (l *Logging) Has(ctx context.Context, ref syncr.Ref) (bool, error) {
	has, err := l.s.Has(ctx, ref)
	if err != nil {
		l.log.Debug("has", zap.Stringer("ref", ref), zap.Error(err))
	} else {
		l.log.Debug("has", zap.Stringer("ref", ref), zap.Bool("present", has))
	}
	return has, err
}

func (l *Logging) Read(ctx context.Context, ref syncr.Ref) ([]byte, error) {
	data, err := l.s.Read(ctx, ref)
	if err != nil {
		l.log.Debug("read", zap.Stringer("ref", ref), zap.Error(err))
	} else {
		l.log.Debug("read", zap.Stringer("ref", ref), zap.Int("bytes", len(data)))
	}
	return data, err
}

func (l *Logging) Stage(ctx context.Context, ref syncr.Ref, data []byte) (StagedChunk, error) {
	staged, err := l.s.Stage(ctx, ref, data)
	if err != nil {
		l.log.Debug("stage", zap.Stringer("ref", ref), zap.Error(err))
	} else {
		l.log.Debug("stage", zap.Stringer("ref", ref), zap.Int("bytes", len(data)))
	}
	return staged, err
}

func (l *Logging) Install(ctx context.Context, staged StagedChunk) error {
	err := l.s.Install(ctx, staged)
	if err != nil {
		l.log.Debug("install", zap.Stringer("ref", staged.Ref()), zap.Error(err))
	} else {
		l.log.Debug("install", zap.Stringer("ref", staged.Ref()))
	}
	return err
}

func (l *Logging) ListPrefix(ctx context.Context, prefix string, f func(syncr.Ref) error) error {
	l.log.Debug("list_prefix", zap.String("prefix", prefix))
	return l.s.ListPrefix(ctx, prefix, func(ref syncr.Ref) error {
		err := f(ref)
		if err != nil {
			l.log.Debug("  list_prefix item", zap.Stringer("ref", ref), zap.Error(err))
		} else {
			l.log.Debug("  list_prefix item", zap.Stringer("ref", ref))
		}
		return err
	})
}
