// Package dns checks how a filtering resolver answers for a domain, to tell
// whether a domain is currently blocked before or after whitelisting it.
package dns

import (
	"context"
	"fmt"
	"net"
	"time"

	"dnsmedic/internal/rules"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// Verdict classifies a resolver answer
type Verdict string

const (
	VerdictResolved Verdict = "resolved"
	// VerdictBlocked means the resolver returned an unspecified address
	// (0.0.0.0 or ::) or refused the query
	VerdictBlocked Verdict = "blocked"
	// VerdictNXDomain may be a block or a domain that does not exist
	VerdictNXDomain Verdict = "nxdomain"
	VerdictNoData   Verdict = "nodata"
)

// Result is the outcome of probing one domain
type Result struct {
	Domain    string        `json:"domain"`
	Resolver  string        `json:"resolver"`
	Verdict   Verdict       `json:"verdict"`
	Rcode     string        `json:"rcode"`
	Addresses []string      `json:"addresses,omitempty"`
	RTT       time.Duration `json:"rtt"`
}

// Blocked reports whether the answer looks like a filtering response
func (r *Result) Blocked() bool {
	return r.Verdict == VerdictBlocked || r.Verdict == VerdictNXDomain
}

// Prober sends A and AAAA queries to a single resolver
type Prober struct {
	resolver string
	client   *dns.Client
}

// NewProber creates a prober for resolver (host:port; port 53 is assumed when missing)
func NewProber(resolver string, timeout time.Duration) *Prober {
	if _, _, err := net.SplitHostPort(resolver); err != nil {
		resolver = net.JoinHostPort(resolver, "53")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Prober{
		resolver: resolver,
		client:   &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// Probe resolves domain and classifies the answer
func (p *Prober) Probe(ctx context.Context, domain string) (*Result, error) {
	name, err := rules.NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Domain:   name,
		Resolver: p.resolver,
		Verdict:  VerdictNoData,
	}

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(name), qtype)
		msg.RecursionDesired = true

		resp, rtt, err := p.client.ExchangeContext(ctx, msg, p.resolver)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s for %s: %w", p.resolver, name, err)
		}
		result.RTT += rtt
		result.Rcode = dns.RcodeToString[resp.Rcode]

		switch resp.Rcode {
		case dns.RcodeNameError:
			result.Verdict = VerdictNXDomain
			return result, nil
		case dns.RcodeRefused:
			result.Verdict = VerdictBlocked
			return result, nil
		case dns.RcodeSuccess:
		default:
			return nil, fmt.Errorf("resolver %s answered %s for %s", p.resolver, result.Rcode, name)
		}

		for _, rr := range resp.Answer {
			var ip net.IP
			switch v := rr.(type) {
			case *dns.A:
				ip = v.A
			case *dns.AAAA:
				ip = v.AAAA
			default:
				continue
			}
			result.Addresses = append(result.Addresses, ip.String())
			if ip.IsUnspecified() {
				result.Verdict = VerdictBlocked
			} else if result.Verdict == VerdictNoData {
				result.Verdict = VerdictResolved
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"domain":  name,
		"verdict": result.Verdict,
		"rtt":     result.RTT.String(),
	}).Debug("Probed domain")

	return result, nil
}
