// Package transport talks to the authoritative side of a managed zone: an
// RFC 2136 master over DNS, or a Route53 hosted zone.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"dnsmanager/internal/model"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultFudge   = 300
)

// DNS transfers zones with AXFR and publishes changes with TSIG-signed
// UPDATE messages.
type DNS struct {
	timeout    time.Duration
	fudge      uint16
	resolveNet string
}

func NewDNS(timeout time.Duration, fudge uint16) *DNS {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if fudge == 0 {
		fudge = DefaultFudge
	}
	return &DNS{timeout: timeout, fudge: fudge, resolveNet: "udp"}
}

func (t *DNS) Transfer(ctx context.Context, m model.Master) ([]model.ZoneRecord, error) {
	addr := masterAddr(m.Address)
	msg := new(dns.Msg)
	msg.SetAxfr(m.Zone)

	tr := &dns.Transfer{
		DialTimeout:  t.timeout,
		ReadTimeout:  t.timeout,
		WriteTimeout: t.timeout,
	}
	if m.Secret != "" {
		msg.SetTsig(m.KeyName, TSIGAlgorithm(m.Algorithm), t.fudge, time.Now().Unix())
		tr.TsigSecret = map[string]string{m.KeyName: m.Secret}
	}

	dialer := net.Dialer{Timeout: t.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("axfr %s from %s: %w", m.Zone, addr, err)
	}
	tr.Conn = &dns.Conn{Conn: conn}
	// Per-read timeouts do not bound the whole stream; closing the
	// connection ends the reader when ctx is done.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	ch, err := tr.In(msg, addr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("axfr %s from %s: %w", m.Zone, addr, err)
	}

	var (
		records []model.ZoneRecord
		seenSOA bool
		failed  error
	)
	for env := range ch {
		// Keep draining so the transfer goroutine can exit.
		if failed != nil {
			continue
		}
		if env.Error != nil {
			failed = env.Error
			continue
		}
		for _, rr := range env.RR {
			// The closing SOA repeats the opening one.
			if rr.Header().Rrtype == dns.TypeSOA {
				if seenSOA {
					continue
				}
				seenSOA = true
			}
			records = append(records, zoneRecord(rr))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("axfr %s from %s: %w", m.Zone, addr, err)
	}
	if failed != nil {
		return nil, fmt.Errorf("axfr %s from %s: %w", m.Zone, addr, failed)
	}
	return records, nil
}

// Resolve asks the master directly for the rdata of fqdn/rrType. A name or
// type that does not exist resolves to nothing.
func (t *DNS) Resolve(ctx context.Context, m model.Master, fqdn, rrType string) ([]string, error) {
	qtype, ok := dns.StringToType[strings.ToUpper(rrType)]
	if !ok {
		return nil, fmt.Errorf("unknown record type %q", rrType)
	}
	addr := masterAddr(m.Address)
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(fqdn), qtype)

	client := &dns.Client{Net: t.resolveNet, Timeout: t.timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, addr)
	if err == nil && resp.Truncated && t.resolveNet == "udp" {
		client.Net = "tcp"
		resp, _, err = client.ExchangeContext(ctx, msg, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s %s at %s: %w", fqdn, rrType, addr, err)
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("query %s %s at %s: %s", fqdn, rrType, addr, dns.RcodeToString[resp.Rcode])
	}

	var out []string
	for _, rr := range resp.Answer {
		if rr.Header().Rrtype != qtype || !strings.EqualFold(rr.Header().Name, msg.Question[0].Name) {
			continue
		}
		out = append(out, rdata(rr))
	}
	return out, nil
}

// Update sends one signed UPDATE for ch. "update" replaces the whole RRset of
// the name and type with the single record.
func (t *DNS) Update(ctx context.Context, m model.Master, ch model.Change) error {
	msg, err := UpdateMessage(m.Zone, ch)
	if err != nil {
		return err
	}
	addr := masterAddr(m.Address)

	client := &dns.Client{Net: "tcp", Timeout: t.timeout}
	if m.Secret != "" {
		msg.SetTsig(m.KeyName, TSIGAlgorithm(m.Algorithm), t.fudge, time.Now().Unix())
		client.TsigSecret = map[string]string{m.KeyName: m.Secret}
	}

	resp, _, err := client.ExchangeContext(ctx, msg, addr)
	if err != nil {
		return fmt.Errorf("update %s at %s: %w", m.Zone, addr, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("update %s at %s: %w", m.Zone, addr, &RcodeError{Rcode: resp.Rcode})
	}
	return nil
}

// UpdateMessage builds the unsigned UPDATE message for ch in zone.
func UpdateMessage(zone string, ch model.Change) (*dns.Msg, error) {
	if zone == "" || zone == "." {
		return nil, errors.New("update: zone not specified")
	}
	rr, err := dns.NewRR(fmt.Sprintf("%s %d IN %s %s", dns.Fqdn(ch.FQDN), ch.TTL, ch.Type, ch.Data))
	if err != nil {
		return nil, fmt.Errorf("update: %s %s %q: %w", ch.FQDN, ch.Type, ch.Data, err)
	}
	if rr == nil {
		return nil, fmt.Errorf("update: empty %s record for %s", ch.Type, ch.FQDN)
	}

	msg := new(dns.Msg)
	msg.SetUpdate(dns.Fqdn(zone))
	switch ch.Op {
	case model.OpAdd:
		msg.Insert([]dns.RR{rr})
	case model.OpDelete:
		msg.Remove([]dns.RR{rr})
	case model.OpUpdate:
		msg.RemoveRRset([]dns.RR{rr})
		msg.Insert([]dns.RR{rr})
	default:
		return nil, fmt.Errorf("update: unknown operation %q", ch.Op)
	}
	return msg, nil
}

type RcodeError struct {
	Rcode int
}

func (e *RcodeError) Error() string {
	if s, ok := dns.RcodeToString[e.Rcode]; ok {
		return "server responded " + s
	}
	return fmt.Sprintf("server responded rcode %d", e.Rcode)
}

// TSIGAlgorithm maps a configured algorithm name to its wire identifier.
// Unknown or empty names fall back to HMAC-SHA256.
func TSIGAlgorithm(algo string) string {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(algo)), ".") {
	case "hmac-md5", "hmac-md5.sig-alg.reg.int":
		return dns.HmacMD5
	case "hmac-sha1":
		return dns.HmacSHA1
	case "hmac-sha224":
		return dns.HmacSHA224
	case "hmac-sha384":
		return dns.HmacSHA384
	case "hmac-sha512":
		return dns.HmacSHA512
	default:
		return dns.HmacSHA256
	}
}

func zoneRecord(rr dns.RR) model.ZoneRecord {
	h := rr.Header()
	return model.ZoneRecord{
		Name:  h.Name,
		TTL:   int64(h.Ttl),
		Class: dns.Class(h.Class).String(),
		Type:  dns.Type(h.Rrtype).String(),
		Data:  rdata(rr),
	}
}

// rdata is the presentation form of rr without its header.
func rdata(rr dns.RR) string {
	return strings.TrimSpace(strings.TrimPrefix(rr.String(), rr.Header().String()))
}

// masterAddr adds the DNS port to a bare host or IP.
func masterAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(strings.Trim(addr, "[]"), "53")
}
