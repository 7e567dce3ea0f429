package allocator

import (
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"time"

	http3 "github.com/quic-go/quic-go/http3"
)

// StatsExporter serves the allocator's most recent AllocStats snapshot as
// JSON over HTTP/3-over-QUIC, grounded on netstack.HTTP3Server's lifecycle
// (Start/Stop/Error) but narrowed to a single fixed, read-only handler: it
// never reaches into the region, only into the Allocator's published
// snapshot, so it cannot race with or block the mutation path. While no
// snapshot has been published it answers 503 Service Unavailable.
type StatsExporter struct {
	a     *Allocator
	pc    net.PacketConn
	srv   *http3.Server
	close func() error
	errC  chan error
	addr  string
}

// NewStatsExporter builds an exporter bound to addr (":0" for an ephemeral
// port) using tlsCfg, which must not be nil: HTTP/3 requires TLS 1.3 and
// this package does not manufacture a self-signed certificate for callers.
func NewStatsExporter(a *Allocator, addr string, tlsCfg *tls.Config) (*StatsExporter, error) {
	if tlsCfg == nil {
		return nil, errMisuse("NewStatsExporter requires a non-nil *tls.Config", nil)
	}

	cfg := tlsCfg.Clone()
	if cfg.MinVersion == 0 || cfg.MinVersion < tls.VersionTLS13 {
		cfg.MinVersion = tls.VersionTLS13
	}

	if len(cfg.NextProtos) == 0 {
		cfg.NextProtos = []string{"h3"}
	}

	e := &StatsExporter{a: a, addr: addr, errC: make(chan error, 1)}
	e.srv = &http3.Server{Addr: addr, TLSConfig: cfg, Handler: http.HandlerFunc(e.serveStats)}

	return e, nil
}

func (e *StatsExporter) serveStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s := e.a.lastStats.Load()
	if s == nil {
		// Nothing has been published (stats publishing is off); walking
		// the region from this goroutine could race with a mutation.
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(*s)
}

// Start begins serving and returns the bound address, resolved after
// listening so a ":0" addr yields the actual ephemeral port.
func (e *StatsExporter) Start() (string, error) {
	pc, err := net.ListenPacket("udp", e.addr)
	if err != nil {
		return "", err
	}

	e.pc = pc

	realAddr := pc.LocalAddr().String()
	done := make(chan struct{})

	go func() {
		if err := e.srv.Serve(pc); err != nil {
			select {
			case e.errC <- err:
			default:
			}
		}

		close(done)
	}()

	e.close = func() error {
		_ = e.pc.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
		}

		return nil
	}

	return realAddr, nil
}

// Stop shuts the exporter down; it is safe to call even if Start failed.
func (e *StatsExporter) Stop() error {
	if e.close != nil {
		return e.close()
	}

	return nil
}

// Error returns a non-blocking channel receiving the first serve error.
func (e *StatsExporter) Error() <-chan error {
	return e.errC
}
