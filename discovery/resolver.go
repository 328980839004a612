package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// DefaultPort is the P2P port bootstrap records are assumed to listen on.
const DefaultPort uint16 = 9732

// DefaultBootstrapNames are the public mainnet bootstrap names.
var DefaultBootstrapNames = []string{
	"boot.tzboot.net",
	"boot.tzbeta.net",
	"boot.mainnet.oxheadhosted.com",
}

const resolvConf = "/etc/resolv.conf"

var (
	// ErrNoAddresses is returned when resolution produced nothing to dial.
	ErrNoAddresses = errors.New("no peer addresses resolved")
	// ErrNoServers is returned when no DNS server is configured or found.
	ErrNoServers = errors.New("no DNS servers configured")
)

// Config controls bootstrap name resolution.
type Config struct {
	Names       []string
	DefaultPort uint16
	// Servers are "host:port" DNS servers. Empty means the system resolvers
	// from /etc/resolv.conf.
	Servers []string
	// Timeout bounds a single DNS query.
	Timeout time.Duration
	// Retries is the number of retries per query after the first attempt.
	Retries int
	Logger  *logrus.Entry
}

// DefaultConfig returns the mainnet bootstrap configuration.
func DefaultConfig() Config {
	return Config{
		Names:       append([]string(nil), DefaultBootstrapNames...),
		DefaultPort: DefaultPort,
		Timeout:     3 * time.Second,
		Retries:     2,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Names) == 0 {
		return errors.New("discovery: no bootstrap names")
	}
	if c.DefaultPort == 0 {
		return errors.New("discovery: default port must be non-zero")
	}
	if c.Timeout <= 0 {
		return errors.New("discovery: timeout must be positive")
	}
	if c.Retries < 0 {
		return errors.New("discovery: retries must not be negative")
	}
	return nil
}

// Resolver resolves bootstrap names to peer addresses.
type Resolver struct {
	cfg     Config
	servers []string
	client  *dns.Client
	logger  *logrus.Entry
}

// NewResolver validates cfg and locates DNS servers.
func NewResolver(cfg Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	servers := cfg.Servers
	if len(servers) == 0 {
		cc, err := dns.ClientConfigFromFile(resolvConf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoServers, err)
		}
		for _, s := range cc.Servers {
			servers = append(servers, net.JoinHostPort(s, cc.Port))
		}
	}
	if len(servers) == 0 {
		return nil, ErrNoServers
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.WithField("component", "discovery")
	}

	return &Resolver{
		cfg:     cfg,
		servers: servers,
		client:  &dns.Client{Net: "udp", Timeout: cfg.Timeout},
		logger:  logger,
	}, nil
}

// Resolve looks up every configured name concurrently and returns the
// de-duplicated addresses in name order. Names that fail are logged and
// skipped. The aggregated error is returned only when nothing resolved.
func (r *Resolver) Resolve(ctx context.Context) ([]string, error) {
	results := make([][]string, len(r.cfg.Names))
	var (
		mu   sync.Mutex
		errs error
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range r.cfg.Names {
		i, name := i, name
		g.Go(func() error {
			addrs, err := r.LookupName(gctx, name)
			if err != nil {
				r.logger.WithFields(logrus.Fields{
					"function": "Resolve",
					"name":     name,
					"error":    err.Error(),
				}).Warn("Bootstrap name did not resolve")
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				return nil
			}
			results[i] = addrs
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []string
	seen := make(map[string]bool)
	for _, addrs := range results {
		for _, a := range addrs {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}

	if len(out) == 0 {
		if errs == nil {
			return nil, ErrNoAddresses
		}
		return nil, fmt.Errorf("%w: %w", ErrNoAddresses, errs)
	}

	r.logger.WithFields(logrus.Fields{
		"function":  "Resolve",
		"names":     len(r.cfg.Names),
		"addresses": len(out),
	}).Info("Bootstrap names resolved")
	return out, nil
}

// LookupName returns "ip:port" addresses from the A and AAAA records of name.
func (r *Resolver) LookupName(ctx context.Context, name string) ([]string, error) {
	var out []string
	var errs error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		ips, err := r.query(ctx, dns.Fqdn(name), qtype)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, ip := range ips {
			out = append(out, net.JoinHostPort(ip.String(), strconv.Itoa(int(r.cfg.DefaultPort))))
		}
	}
	if len(out) == 0 {
		if errs != nil {
			return nil, fmt.Errorf("resolve %s: %w", name, errs)
		}
		return nil, fmt.Errorf("resolve %s: %w", name, ErrNoAddresses)
	}
	return out, nil
}

// query sends one question, retrying transient failures across servers.
func (r *Resolver) query(ctx context.Context, fqdn string, qtype uint16) ([]net.IP, error) {
	var ips []net.IP
	attempt := 0

	op := func() error {
		server := r.servers[attempt%len(r.servers)]
		attempt++

		req := new(dns.Msg)
		req.SetQuestion(fqdn, qtype)
		req.RecursionDesired = true

		res, _, err := r.client.ExchangeContext(ctx, req, server)
		if err != nil {
			return err
		}
		switch res.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return backoff.Permanent(fmt.Errorf("%s %s: %s", dns.TypeToString[qtype], fqdn, dns.RcodeToString[res.Rcode]))
		default:
			return fmt.Errorf("%s %s: unexpected response code %s", dns.TypeToString[qtype], fqdn, dns.RcodeToString[res.Rcode])
		}

		ips = ips[:0]
		for _, rr := range res.Answer {
			switch rec := rr.(type) {
			case *dns.A:
				ips = append(ips, rec.A)
			case *dns.AAAA:
				ips = append(ips, rec.AAAA)
			}
		}
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 100 * time.Millisecond
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.cfg.Retries)), ctx)

	notify := func(err error, wait time.Duration) {
		r.logger.WithFields(logrus.Fields{
			"function": "query",
			"name":     fqdn,
			"type":     dns.TypeToString[qtype],
			"retry_in": wait.String(),
			"error":    err.Error(),
		}).Debug("DNS query failed, retrying")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return ips, nil
}
