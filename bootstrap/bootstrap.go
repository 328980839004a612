// Package bootstrap tries peer addresses in order until one handshake
// succeeds.
//
// A Bootstrapper owns one handshake.Engine. Run dials the candidate
// addresses one after another; the first success is returned to the caller
// and every failure along the way is collected into a single multierr error.
// When FollowNack is set, alternate peers offered by a rejecting peer are
// appended to the queue, at most MaxFollow of them per run.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/opd-ai/tezhandshake/discovery"
	"github.com/opd-ai/tezhandshake/handshake"
	"github.com/opd-ai/tezhandshake/peerbook"
)

// DefaultMaxFollow bounds the alternates appended per run.
const DefaultMaxFollow = 10

var (
	// ErrNoAddresses is returned when there is nothing to try.
	ErrNoAddresses = errors.New("no peer addresses to try")
	// ErrAllAttemptsFailed wraps the aggregated failures of a run.
	ErrAllAttemptsFailed = errors.New("all handshake attempts failed")
)

// Reporter receives address bookkeeping events; metrics.Collector
// implements it.
type Reporter interface {
	AddressesResolved(n int)
	PeersSuggested(n int)
}

// Config configures a Bootstrapper.
type Config struct {
	Handshake handshake.Config

	// FollowNack appends alternate peers from rejections to the queue.
	FollowNack bool
	MaxFollow  int

	// PeerBook, when set, records every attempt and suggestion and
	// contributes known-good peers to Addresses.
	PeerBook *peerbook.Book
	Reporter Reporter
	Logger   *logrus.Entry
}

// Bootstrapper runs ordered handshake attempts.
type Bootstrapper struct {
	cfg    Config
	engine *handshake.Engine
	logger *logrus.Entry
}

// New builds the handshake engine for cfg.
func New(cfg Config) (*Bootstrapper, error) {
	if cfg.MaxFollow < 0 {
		return nil, fmt.Errorf("bootstrap: negative MaxFollow %d", cfg.MaxFollow)
	}
	if cfg.FollowNack && cfg.MaxFollow == 0 {
		cfg.MaxFollow = DefaultMaxFollow
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.WithField("component", "bootstrap")
	}

	engine, err := handshake.New(cfg.Handshake)
	if err != nil {
		return nil, err
	}
	return &Bootstrapper{cfg: cfg, engine: engine, logger: cfg.Logger}, nil
}

// Addresses builds the attempt order: static addresses first, then peers
// that succeeded before according to the peer book, then addresses resolved
// by resolver starting at a random offset. resolver may be nil. A resolver
// failure is only returned when no other source produced an address.
func (b *Bootstrapper) Addresses(ctx context.Context, static []string, resolver *discovery.Resolver) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(addrs []string) {
		for _, a := range addrs {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}

	add(static)

	if b.cfg.PeerBook != nil {
		known, err := b.cfg.PeerBook.Candidates(0)
		if err != nil {
			b.logger.WithFields(logrus.Fields{
				"function": "Addresses",
				"error":    err.Error(),
			}).Warn("Peer book unavailable")
		}
		add(known)
	}

	var resolveErr error
	if resolver != nil {
		resolved, err := resolver.Resolve(ctx)
		if err != nil {
			resolveErr = err
		} else {
			if b.cfg.Reporter != nil {
				b.cfg.Reporter.AddressesResolved(len(resolved))
			}
			add(discovery.Rotate(resolved, discovery.RandomOffset(len(resolved))))
		}
	}

	if len(out) == 0 {
		if resolveErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoAddresses, resolveErr)
		}
		return nil, ErrNoAddresses
	}
	return out, nil
}

// Run attempts a handshake with each address in turn and returns the first
// successful session. The caller owns the returned Result.
func (b *Bootstrapper) Run(ctx context.Context, addrs []string) (*handshake.Result, error) {
	if len(addrs) == 0 {
		return nil, ErrNoAddresses
	}

	queue := make([]string, 0, len(addrs))
	seen := make(map[string]bool)
	for _, a := range addrs {
		if !seen[a] {
			seen[a] = true
			queue = append(queue, a)
		}
	}

	var errs error
	followed := 0
	for i := 0; i < len(queue); i++ {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}

		addr := queue[i]
		b.logger.WithFields(logrus.Fields{
			"function": "Run",
			"address":  addr,
			"attempt":  i + 1,
			"queued":   len(queue),
		}).Info("Attempting handshake")

		res, err := b.engine.Connect(ctx, addr)
		b.record(addr, res, err)
		if err == nil {
			return res, nil
		}
		errs = multierr.Append(errs, err)

		var herr *handshake.Error
		if !errors.As(err, &herr) || herr.Kind != handshake.KindRejected || len(herr.AlternatePeers) == 0 {
			continue
		}
		alternates := b.suggested(addr, herr.AlternatePeers)
		if !b.cfg.FollowNack {
			continue
		}
		for _, alt := range alternates {
			if followed >= b.cfg.MaxFollow {
				break
			}
			if seen[alt] {
				continue
			}
			seen[alt] = true
			queue = append(queue, alt)
			followed++
		}
	}

	return nil, fmt.Errorf("%w (%d addresses): %w", ErrAllAttemptsFailed, len(queue), errs)
}

// suggested normalizes and records the alternates a rejecting peer offered.
func (b *Bootstrapper) suggested(from string, peers []string) []string {
	var alternates []string
	for _, p := range peers {
		addr, err := discovery.ParseAddress(p, handshake.DefaultPort)
		if err != nil {
			b.logger.WithFields(logrus.Fields{
				"function": "suggested",
				"from":     from,
				"peer":     p,
			}).Debug("Ignoring unusable alternate peer")
			continue
		}
		alternates = append(alternates, addr)
	}

	if b.cfg.Reporter != nil {
		b.cfg.Reporter.PeersSuggested(len(alternates))
	}
	if b.cfg.PeerBook != nil && len(alternates) > 0 {
		if _, err := b.cfg.PeerBook.AddSuggested(from, alternates); err != nil {
			b.logger.WithFields(logrus.Fields{
				"function": "suggested",
				"from":     from,
				"error":    err.Error(),
			}).Warn("Failed to store suggested peers")
		}
	}
	return alternates
}

func (b *Bootstrapper) record(addr string, res *handshake.Result, err error) {
	if b.cfg.PeerBook == nil {
		return
	}

	outcome, peerID := peerbook.OutcomeSuccess, ""
	if res != nil {
		peerID = res.PeerID
	}
	var herr *handshake.Error
	if errors.As(err, &herr) {
		outcome = herr.Kind.String()
	} else if err != nil {
		outcome = "error"
	}

	if rerr := b.cfg.PeerBook.RecordAttempt(addr, outcome, peerID, err); rerr != nil {
		b.logger.WithFields(logrus.Fields{
			"function": "record",
			"address":  addr,
			"error":    rerr.Error(),
		}).Warn("Failed to record attempt")
	}
}
