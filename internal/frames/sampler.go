package frames

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"tally/internal/logging"
	"tally/internal/services"
)

const stageSampling = "sampling"

// ErrDurationUnavailable reports a video whose length could not be determined
// or is not a positive finite number.
var ErrDurationUnavailable = errors.New("video duration unavailable")

// Source is an open, seekable video. Implementations hold temporary
// resources that Close releases.
type Source interface {
	Duration(ctx context.Context) (float64, error)
	Capture(ctx context.Context, seconds float64) ([]byte, error)
	Close() error
}

// Opener prepares a Source for a video path.
type Opener interface {
	Open(ctx context.Context, path string) (Source, error)
}

// StepKind names a sampler transition.
type StepKind int

const (
	// StepSeeking is emitted before a capture is requested.
	StepSeeking StepKind = iota
	// StepCaptured is emitted once the frame bytes are in hand.
	StepCaptured
)

// Step is one transition of the sampling sequence:
// SeekingTo(0) → Captured(0) → SeekingTo(1) → ...
type Step struct {
	Kind    StepKind
	Index   int
	Seconds float64
}

func (s Step) String() string {
	if s.Kind == StepCaptured {
		return fmt.Sprintf("Captured(%d)", s.Index)
	}
	return fmt.Sprintf("SeekingTo(%d)", s.Index)
}

// Observer receives every Step in order.
type Observer func(Step)

// Sampler captures one frame per entry in Offsets, strictly in sequence.
type Sampler struct {
	opener   Opener
	observer Observer
	logger   *slog.Logger
}

// Option customizes a Sampler.
type Option func(*Sampler)

// WithObserver registers a step observer.
func WithObserver(observer Observer) Option {
	return func(s *Sampler) {
		s.observer = observer
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sampler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSampler constructs a sampler over opener.
func NewSampler(opener Opener, opts ...Option) *Sampler {
	s := &Sampler{opener: opener, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample returns exactly len(Offsets) frames or an error with no frames.
// The source is closed on every path.
func (s *Sampler) Sample(ctx context.Context, path string) ([]Frame, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrInput, stageSampling, "sample frames", "no video staged", nil)
	}
	if s.opener == nil {
		return nil, services.Wrap(services.ErrConfiguration, stageSampling, "sample frames", "no frame source configured", nil)
	}
	logger := logging.WithContext(ctx, s.logger)

	src, err := s.opener.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			logging.WarnWithContext(logger, "frame workspace cleanup failed", "frame_cleanup_failed",
				logging.Error(cerr),
				logging.String(logging.FieldImpact, "temporary frame files may remain in the staging directory"),
			)
		}
	}()

	duration, err := src.Duration(ctx)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return nil, services.Wrap(services.ErrMedia, stageSampling, "probe duration",
			fmt.Sprintf("reported duration %v", duration), ErrDurationUnavailable)
	}

	out := make([]Frame, 0, len(Offsets))
	for i, offset := range Offsets {
		seconds := duration * offset
		s.notify(Step{Kind: StepSeeking, Index: i, Seconds: seconds})
		data, err := src.Capture(ctx, seconds)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, services.Wrap(services.ErrMedia, stageSampling, "capture frame",
				fmt.Sprintf("frame %d at %.3fs is empty", i, seconds), nil)
		}
		out = append(out, Frame{Index: i, Offset: offset, Seconds: seconds, MIMEType: "image/jpeg", Data: data})
		s.notify(Step{Kind: StepCaptured, Index: i, Seconds: seconds})
		logger.Debug("frame captured",
			logging.Int("index", i),
			logging.Float64("seconds", seconds),
			logging.Int("bytes", len(data)),
			logging.String(logging.FieldEventType, "frame_captured"),
		)
	}
	return out, nil
}

func (s *Sampler) notify(step Step) {
	if s.observer != nil {
		s.observer(step)
	}
}
