package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnsmanager/internal/model"
)

const testKey = "example.com."

// testSecret is base64 for "0123456789abcdef".
const testSecret = "MDEyMzQ1Njc4OWFiY2RlZg=="

func startServer(t *testing.T, handler dns.HandlerFunc, tsig map[string]string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		Listener:          ln,
		Net:               "tcp",
		Handler:           handler,
		TsigSecret:        tsig,
		MsgAcceptFunc:     func(dns.Header) dns.MsgAcceptAction { return dns.MsgAccept },
		NotifyStartedFunc: func() { close(started) },
	}
	go func() {
		_ = srv.ActivateAndServe()
	}()
	t.Cleanup(func() { _ = srv.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}
	return ln.Addr().String()
}

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	require.NoError(t, err)
	return rr
}

func TestUpdateMessage(t *testing.T) {
	tests := []struct {
		name   string
		change model.Change
		check  func(t *testing.T, ns []dns.RR)
	}{
		{
			name:   "add inserts the record",
			change: model.Change{Op: model.OpAdd, TTL: 300, Type: "A", FQDN: "www.example.com.", Data: "192.0.2.1"},
			check: func(t *testing.T, ns []dns.RR) {
				require.Len(t, ns, 1)
				a, ok := ns[0].(*dns.A)
				require.True(t, ok)
				assert.Equal(t, uint16(dns.ClassINET), a.Hdr.Class)
				assert.Equal(t, uint32(300), a.Hdr.Ttl)
				assert.Equal(t, "192.0.2.1", a.A.String())
			},
		},
		{
			name:   "delete removes the single record",
			change: model.Change{Op: model.OpDelete, TTL: 300, Type: "TXT", FQDN: "www.example.com", Data: `"hello"`},
			check: func(t *testing.T, ns []dns.RR) {
				require.Len(t, ns, 1)
				assert.Equal(t, uint16(dns.ClassNONE), ns[0].Header().Class)
				assert.Equal(t, uint32(0), ns[0].Header().Ttl)
				assert.Equal(t, dns.TypeTXT, ns[0].Header().Rrtype)
			},
		},
		{
			name:   "update replaces the rrset",
			change: model.Change{Op: model.OpUpdate, TTL: 60, Type: "AAAA", FQDN: "host.example.com.", Data: "2001:db8::1"},
			check: func(t *testing.T, ns []dns.RR) {
				require.Len(t, ns, 2)
				assert.Equal(t, uint16(dns.ClassANY), ns[0].Header().Class)
				assert.Equal(t, dns.TypeAAAA, ns[0].Header().Rrtype)
				assert.Equal(t, uint16(dns.ClassINET), ns[1].Header().Class)
				assert.Equal(t, "2001:db8::1", ns[1].(*dns.AAAA).AAAA.String())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := UpdateMessage("example.com.", tt.change)
			require.NoError(t, err)
			assert.Equal(t, dns.OpcodeUpdate, msg.Opcode)
			require.Len(t, msg.Question, 1)
			assert.Equal(t, "example.com.", msg.Question[0].Name)
			assert.Equal(t, dns.TypeSOA, msg.Question[0].Qtype)
			tt.check(t, msg.Ns)
		})
	}

	_, err := UpdateMessage("example.com.", model.Change{Op: model.OpAdd, Type: "A", FQDN: "x.example.com.", Data: "not-an-ip"})
	assert.Error(t, err)
	_, err = UpdateMessage("", model.Change{Op: model.OpAdd, Type: "A", FQDN: "x.", Data: "192.0.2.1"})
	assert.Error(t, err)
	_, err = UpdateMessage("example.com.", model.Change{Op: "replace", Type: "A", FQDN: "x.example.com.", Data: "192.0.2.1"})
	assert.Error(t, err)
}

func TestTSIGAlgorithm(t *testing.T) {
	assert.Equal(t, dns.HmacMD5, TSIGAlgorithm("HMAC-MD5"))
	assert.Equal(t, dns.HmacMD5, TSIGAlgorithm("hmac-md5.sig-alg.reg.int."))
	assert.Equal(t, dns.HmacSHA1, TSIGAlgorithm("hmac-sha1"))
	assert.Equal(t, dns.HmacSHA224, TSIGAlgorithm("hmac-sha224"))
	assert.Equal(t, dns.HmacSHA384, TSIGAlgorithm("hmac-sha384"))
	assert.Equal(t, dns.HmacSHA512, TSIGAlgorithm("hmac-sha512"))
	assert.Equal(t, dns.HmacSHA256, TSIGAlgorithm(""))
	assert.Equal(t, dns.HmacSHA256, TSIGAlgorithm("something"))
}

func TestMasterAddr(t *testing.T) {
	assert.Equal(t, "192.0.2.1:53", masterAddr("192.0.2.1"))
	assert.Equal(t, "192.0.2.1:5353", masterAddr("192.0.2.1:5353"))
	assert.Equal(t, "[2001:db8::1]:53", masterAddr("2001:db8::1"))
	assert.Equal(t, "[2001:db8::1]:53", masterAddr("[2001:db8::1]"))
	assert.Equal(t, "ns1.example.com:53", masterAddr(" ns1.example.com "))
}

func TestTransfer(t *testing.T) {
	soa := mustRR(t, "example.com. 3600 IN SOA ns1.example.com. admin.example.com. 1 7200 3600 1209600 300")
	records := []dns.RR{
		soa,
		mustRR(t, "example.com. 3600 IN NS ns1.example.com."),
		mustRR(t, "www.example.com. 300 IN A 192.0.2.10"),
		mustRR(t, `txt.example.com. 300 IN TXT "v=spf1 -all"`),
		soa,
	}

	var queried string
	addr := startServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		queried = r.Question[0].Name
		ch := make(chan *dns.Envelope)
		tr := new(dns.Transfer)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			_ = tr.Out(w, r, ch)
			wg.Done()
		}()
		ch <- &dns.Envelope{RR: records}
		close(ch)
		wg.Wait()
		_ = w.Close()
	}, nil)

	tp := NewDNS(2*time.Second, 0)
	got, err := tp.Transfer(context.Background(), model.Master{Address: addr, Zone: "example.com."})
	require.NoError(t, err)
	assert.Equal(t, "example.com.", queried)

	require.Len(t, got, 4, "closing SOA must be dropped")
	assert.Equal(t, "SOA", got[0].Type)
	assert.Equal(t, model.ZoneRecord{Name: "example.com.", TTL: 3600, Class: "IN", Type: "NS", Data: "ns1.example.com."}, got[1])
	assert.Equal(t, model.ZoneRecord{Name: "www.example.com.", TTL: 300, Class: "IN", Type: "A", Data: "192.0.2.10"}, got[2])
	assert.Equal(t, `"v=spf1 -all"`, got[3].Data)
}

func TestTransferCancelled(t *testing.T) {
	soa := mustRR(t, "example.com. 3600 IN SOA ns1.example.com. admin.example.com. 1 7200 3600 1209600 300")
	release := make(chan struct{})
	addr := startServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = []dns.RR{soa}
		_ = w.WriteMsg(m)
		// Stall the stream without sending the closing SOA.
		<-release
		_ = w.Close()
	}, nil)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	tp := NewDNS(10*time.Second, 0)
	start := time.Now()
	_, err := tp.Transfer(ctx, model.Master{Address: addr, Zone: "example.com."})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTransferRefused(t *testing.T) {
	addr := startServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeRefused)
		_ = w.WriteMsg(m)
	}, nil)

	tp := NewDNS(2*time.Second, 0)
	_, err := tp.Transfer(context.Background(), model.Master{Address: addr, Zone: "example.com."})
	assert.Error(t, err)
}

func TestTransferUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	tp := NewDNS(time.Second, 0)
	_, err = tp.Transfer(context.Background(), model.Master{Address: addr, Zone: "example.com."})
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	addr := startServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		switch {
		case q.Name == "host.example.com." && q.Qtype == dns.TypeA:
			m.Answer = append(m.Answer,
				mustRR(t, "host.example.com. 60 IN A 192.0.2.1"),
				mustRR(t, "host.example.com. 60 IN A 192.0.2.2"),
			)
		case q.Name == "host.example.com.":
			// NODATA
		case q.Name == "broken.example.com.":
			m.Rcode = dns.RcodeServerFailure
		default:
			m.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	}, nil)

	tp := NewDNS(2*time.Second, 0)
	tp.resolveNet = "tcp"
	master := model.Master{Address: addr, Zone: "example.com."}
	ctx := context.Background()

	got, err := tp.Resolve(ctx, master, "host.example.com.", "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.1", "192.0.2.2"}, got)

	got, err = tp.Resolve(ctx, master, "host.example.com.", "AAAA")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = tp.Resolve(ctx, master, "missing.example.com.", "A")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = tp.Resolve(ctx, master, "broken.example.com.", "A")
	assert.Error(t, err)

	_, err = tp.Resolve(ctx, master, "host.example.com.", "NOPE")
	assert.Error(t, err)
}

func TestUpdateSigned(t *testing.T) {
	var (
		mu      sync.Mutex
		signed  bool
		updates []dns.RR
	)
	addr := startServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		if ts := r.IsTsig(); ts != nil && w.TsigStatus() == nil {
			mu.Lock()
			signed = true
			updates = append(updates, r.Ns...)
			mu.Unlock()
			m.SetTsig(ts.Hdr.Name, ts.Algorithm, 300, time.Now().Unix())
		} else {
			m.Rcode = dns.RcodeNotAuth
		}
		_ = w.WriteMsg(m)
	}, map[string]string{testKey: testSecret})

	tp := NewDNS(2*time.Second, 0)
	master := model.Master{Address: addr, Zone: "example.com.", KeyName: testKey, Secret: testSecret, Algorithm: "hmac-sha256"}

	err := tp.Update(context.Background(), master, model.Change{Op: model.OpAdd, TTL: 300, Type: "A", FQDN: "www.example.com.", Data: "192.0.2.7"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, signed)
	require.Len(t, updates, 1)
	assert.Equal(t, "www.example.com.", updates[0].Header().Name)
}

func TestUpdateRejected(t *testing.T) {
	addr := startServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeRefused)
		_ = w.WriteMsg(m)
	}, nil)

	tp := NewDNS(2*time.Second, 0)
	err := tp.Update(context.Background(), model.Master{Address: addr, Zone: "example.com."},
		model.Change{Op: model.OpDelete, TTL: 300, Type: "A", FQDN: "www.example.com.", Data: "192.0.2.7"})
	require.Error(t, err)

	var rc *RcodeError
	require.ErrorAs(t, err, &rc)
	assert.Equal(t, dns.RcodeRefused, rc.Rcode)
}
