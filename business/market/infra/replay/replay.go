// Package replay feeds recorded JSONL feature frames back into market state.
package replay

import (
	"bufio"
	"context"
	"time"

	"github.com/fd1az/multichain-arb/business/market/app"
	"github.com/fd1az/multichain-arb/business/market/infra/codec"
	"github.com/fd1az/multichain-arb/internal/apperror"
)

const maxLineBytes = 4 << 20

// Options tune playback.
type Options struct {
	// Speed scales the recorded gaps between frames. Zero replays as fast as
	// possible; 1 keeps the recorded pace.
	Speed float64
	// Restamp replaces recorded timestamps with the replay wall clock.
	Restamp bool
}

// Source replays one recording, then returns.
type Source struct {
	opener Opener
	opts   Options
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

var _ app.FeatureSource = (*Source)(nil)

// New creates a replay source.
func New(opener Opener, opts Options) *Source {
	return &Source{opener: opener, opts: opts, now: time.Now, sleep: sleepCtx}
}

func (s *Source) Name() string { return "replay:" + s.opener.Describe() }

// Run reads the recording line by line. Blank lines are skipped.
func (s *Source) Run(ctx context.Context, sink app.Sink) error {
	r, err := s.opener.Open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var last time.Time
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		features, err := codec.Decode(line)
		if err != nil {
			sink.Malformed(ctx, s.Name(), err)
			continue
		}

		for _, f := range features {
			if s.opts.Speed > 0 && !f.Timestamp.IsZero() {
				if !last.IsZero() && f.Timestamp.After(last) {
					gap := time.Duration(float64(f.Timestamp.Sub(last)) / s.opts.Speed)
					if err := s.sleep(ctx, gap); err != nil {
						return err
					}
				}
				last = f.Timestamp
			}
			if s.opts.Restamp {
				f.Timestamp = s.now()
			}
			sink.Ingest(ctx, s.Name(), f)
		}
	}
	if err := scanner.Err(); err != nil {
		return apperror.New(apperror.CodeReplaySourceError, apperror.WithCause(err), apperror.WithContext(s.opener.Describe()))
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
