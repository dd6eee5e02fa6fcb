// options.go - functional configuration for Main/Run (§10.1), grounded on
// the teacher's LoopOption/resolveLoopOptions idiom (eventloop/options.go).
package effection

// config holds configuration resolved from Option values, consumed by
// newDispatcher.
type config struct {
	logger         Logger
	clock          Clock
	queueCapacity  int
	signalHandling *bool // nil means "let the entry point decide its own default"
}

// Option configures a dispatcher created by Main or Run.
type Option interface {
	applyConfig(*config) error
}

// optionImpl implements Option, mirroring the teacher's loopOptionImpl.
type optionImpl struct {
	applyConfigFunc func(*config) error
}

func (o *optionImpl) applyConfig(cfg *config) error {
	return o.applyConfigFunc(cfg)
}

// WithLogger sets the Logger the scheduler writes lifecycle diagnostics
// through. The default is a no-op logger.
func WithLogger(logger Logger) Option {
	return &optionImpl{func(cfg *config) error {
		cfg.logger = logger
		return nil
	}}
}

// WithClock sets the Clock driving Sleep and WithTimeout. The default is
// RealClock. Tests that need deterministic timing should supply a
// *FakeClock instead.
func WithClock(clock Clock) Option {
	return &optionImpl{func(cfg *config) error {
		cfg.clock = clock
		return nil
	}}
}

// WithQueueCapacity hints the initial backing capacity of the dispatcher's
// task queue buffers. It is an allocation hint only; the queue still grows
// without bound past this size.
func WithQueueCapacity(n int) Option {
	return &optionImpl{func(cfg *config) error {
		if n < 0 {
			return &TypeError{Message: "effection: WithQueueCapacity requires n >= 0"}
		}
		cfg.queueCapacity = n
		return nil
	}}
}

// WithSignalHandling overrides whether Main installs OS signal handlers
// (SIGINT, SIGTERM) that halt the root scope on receipt. Main enables this
// by default; Run ignores it entirely, since Run never owns process
// lifecycle. Pass false to run Main without taking over signal handling,
// e.g. when the host process installs its own.
func WithSignalHandling(enabled bool) Option {
	return &optionImpl{func(cfg *config) error {
		cfg.signalHandling = &enabled
		return nil
	}}
}

// resolveOptions applies opts in order over a defaulted config, skipping
// nils, matching resolveLoopOptions's "skip nil options gracefully"
// convention.
func resolveOptions(opts []Option) (*config, error) {
	cfg := &config{
		logger: NewNoOpLogger(),
		clock:  RealClock{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyConfig(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
