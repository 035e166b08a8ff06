// Package security rejects malformed, dangerous, or abusive command
// traffic before it reaches the wire.
package security

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrBlocked           = errors.New("security: origin blocked")
	ErrRateLimited       = errors.New("security: rate limited")
	ErrInvalidParameters = errors.New("security: invalid command syntax")
	ErrDangerousCommand  = errors.New("security: dangerous command rejected")
)

// Gate tuning defaults.
const (
	DefaultCommandPrefix     = '/'
	DefaultRateLimit         = 60
	DefaultRateWindow        = time.Minute
	DefaultMaxFailedAttempts = 5
	DefaultBlockDuration     = 15 * time.Minute

	minCommandBody = 2
)

// dangerousVerbs is the fixed denylist of destructive command verbs.
var dangerousVerbs = map[string]struct{}{
	"shutdown": {},
	"restart":  {},
	"reboot":   {},
	"delete":   {},
	"drop":     {},
	"wipe":     {},
	"format":   {},
	"kill":     {},
}

// Clock supplies the current time so rate windows and block expiry are
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options configures a Gate. Zero values fall back to the defaults.
type Options struct {
	CommandPrefix     byte
	RateLimit         int
	RateWindow        time.Duration
	MaxFailedAttempts int
	BlockDuration     time.Duration
	Clock             Clock
}

func (o *Options) applyDefaults() {
	if o.CommandPrefix == 0 {
		o.CommandPrefix = DefaultCommandPrefix
	}
	if o.RateLimit == 0 {
		o.RateLimit = DefaultRateLimit
	}
	if o.RateWindow == 0 {
		o.RateWindow = DefaultRateWindow
	}
	if o.MaxFailedAttempts == 0 {
		o.MaxFailedAttempts = DefaultMaxFailedAttempts
	}
	if o.BlockDuration == 0 {
		o.BlockDuration = DefaultBlockDuration
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}
}

// originRecord tracks one origin's failed attempts, block state and the
// sliding window of accepted request timestamps. Each record has its
// own lock so unrelated origins never contend.
type originRecord struct {
	mu             sync.Mutex
	failedAttempts int
	blockedUntil   time.Time
	window         []time.Time
}

// Gate validates command syntax, blocks dangerous commands, rate-limits
// and blacklists abusive origins.
type Gate struct {
	opts    Options
	origins sync.Map // map[string]*originRecord
	logger  zerolog.Logger
}

// New creates a Gate with the given options.
func New(logger zerolog.Logger, opts Options) *Gate {
	opts.applyDefaults()
	return &Gate{
		opts:   opts,
		logger: logger.With().Str("com", "security").Logger(),
	}
}

// Validate checks a command from an origin. It returns nil when the
// command may be sent; otherwise one of ErrBlocked, ErrRateLimited,
// ErrInvalidParameters or ErrDangerousCommand.
//
// Check order: block state, rate limit, syntax, denylist. A rate-limit
// overflow and a syntax failure do not consume a failed-attempt
// credit; a dangerous command does. An accepted command clears the
// origin's failed-attempt counter and occupies one rate-window slot.
func (g *Gate) Validate(command, origin string) error {
	rec := g.record(origin)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	now := g.opts.Clock.Now()

	// Blocks expire lazily: honored while now < blockedUntil, evicted
	// on the first check afterwards.
	if !rec.blockedUntil.IsZero() {
		if now.Before(rec.blockedUntil) {
			return fmt.Errorf("%w until %s", ErrBlocked, rec.blockedUntil.Format(time.RFC3339))
		}
		rec.blockedUntil = time.Time{}
		rec.failedAttempts = 0
		g.logger.Debug().Str("origin", origin).Msg("block expired")
	}

	rec.pruneWindow(now.Add(-g.opts.RateWindow))
	if len(rec.window) >= g.opts.RateLimit {
		return fmt.Errorf("%w: %d requests in %s", ErrRateLimited, len(rec.window), g.opts.RateWindow)
	}

	if err := g.checkSyntax(command); err != nil {
		return err
	}

	if verb, dangerous := g.dangerousVerb(command); dangerous {
		rec.failedAttempts++
		if rec.failedAttempts >= g.opts.MaxFailedAttempts {
			rec.blockedUntil = now.Add(g.opts.BlockDuration)
			g.logger.Warn().
				Str("origin", origin).
				Int("failed_attempts", rec.failedAttempts).
				Time("blocked_until", rec.blockedUntil).
				Msg("origin blocked")
		}
		return fmt.Errorf("%w: %q", ErrDangerousCommand, verb)
	}

	rec.failedAttempts = 0
	rec.window = append(rec.window, now)
	return nil
}

// IsBlocked reports whether an origin is currently blocked.
func (g *Gate) IsBlocked(origin string) bool {
	v, ok := g.origins.Load(origin)
	if !ok {
		return false
	}
	rec := v.(*originRecord)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return !rec.blockedUntil.IsZero() && g.opts.Clock.Now().Before(rec.blockedUntil)
}

func (g *Gate) record(origin string) *originRecord {
	if v, ok := g.origins.Load(origin); ok {
		return v.(*originRecord)
	}
	v, _ := g.origins.LoadOrStore(origin, &originRecord{})
	return v.(*originRecord)
}

// checkSyntax enforces the command grammar: a prefix character, at
// least two characters of body, and a restricted character set.
func (g *Gate) checkSyntax(command string) error {
	if command == "" {
		return fmt.Errorf("%w: empty command", ErrInvalidParameters)
	}
	if command[0] != g.opts.CommandPrefix {
		return fmt.Errorf("%w: missing %q prefix", ErrInvalidParameters, string(g.opts.CommandPrefix))
	}
	body := command[1:]
	if len(body) < minCommandBody {
		return fmt.Errorf("%w: command too short", ErrInvalidParameters)
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == ' ' || c == '_' || c == '-' || c == '.':
		default:
			return fmt.Errorf("%w: illegal character %q", ErrInvalidParameters, string(c))
		}
	}
	return nil
}

// dangerousVerb extracts the command verb and checks it against the
// denylist.
func (g *Gate) dangerousVerb(command string) (string, bool) {
	body := command[1:]
	verb := body
	if i := strings.IndexByte(body, ' '); i >= 0 {
		verb = body[:i]
	}
	verb = strings.ToLower(verb)
	_, dangerous := dangerousVerbs[verb]
	return verb, dangerous
}

// pruneWindow drops window entries at or before the cutoff.
// Caller must hold rec.mu.
func (r *originRecord) pruneWindow(cutoff time.Time) {
	keep := 0
	for ; keep < len(r.window); keep++ {
		if r.window[keep].After(cutoff) {
			break
		}
	}
	if keep > 0 {
		r.window = append(r.window[:0], r.window[keep:]...)
	}
}
