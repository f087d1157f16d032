// server/server_test.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openfsd/openfsd/auth"
	"github.com/openfsd/openfsd/config"
	"github.com/openfsd/openfsd/plugin"
	"github.com/openfsd/openfsd/wx"
)

type fakeTransport struct {
	mu     sync.Mutex
	lines  []string
	closed bool
}

func (t *fakeTransport) WriteLine(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, string(p))
	return nil
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func (t *fakeTransport) RemoteAddr() string { return "test:0" }

func (t *fakeTransport) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}

func (t *fakeTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// linesWith returns the received lines starting with prefix.
func (t *fakeTransport) linesWith(prefix string) []string {
	var out []string
	for _, l := range t.Lines() {
		if strings.HasPrefix(l, prefix) {
			out = append(out, l)
		}
	}
	return out
}

type memStore map[string]auth.User

func (s memStore) LookupUser(ctx context.Context, cid string) (auth.User, error) {
	u, ok := s[cid]
	if !ok {
		return auth.User{}, auth.ErrUnknownUser
	}
	return u, nil
}

func (s memStore) Close() {}

type cannedFetcher struct {
	metars map[string]*wx.METAR
}

func (f *cannedFetcher) Name() string { return "canned" }

func (f *cannedFetcher) Fetch(ctx context.Context, icao string) (*wx.METAR, error) {
	return f.metars[icao], nil
}

func (f *cannedFetcher) FetchAll(ctx context.Context) (map[string]*wx.METAR, error) {
	return f.metars, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Client.MOTD = []string{"Welcome aboard"}

	store := memStore{
		"1012":   {CID: "1012", PasswordHash: "secret", Rating: 3},
		"100001": {CID: "100001", PasswordHash: "secret", Rating: 5},
		"200001": {CID: "200001", PasswordHash: "secret", Rating: 0},
		"300001": {CID: "300001", PasswordHash: "secret", Rating: 12},
	}

	ksfo, err := wx.ParseMETAR("KSFO 251756Z 28015KT 10SM SCT030 15/08 A2992", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	fetcher := &cannedFetcher{metars: map[string]*wx.METAR{"KSFO": ksfo}}
	wxm, err := wx.NewManager(wx.ManagerConfig{Mode: wx.ModeOnce, Fetchers: []string{"canned"}},
		[]wx.Fetcher{fetcher}, nil)
	if err != nil {
		t.Fatal(err)
	}

	srv, err := New(cfg, store, wxm, plugin.NewDispatcher(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	return srv
}

func newTestSession(srv *Server) (*session, *fakeTransport) {
	tr := &fakeTransport{}
	s := &session{srv: srv, tr: tr, ctx: context.Background()}
	srv.mu.Lock()
	srv.sessions[s] = struct{}{}
	srv.mu.Unlock()
	return s, tr
}

func login(t *testing.T, s *session, line string) {
	t.Helper()
	s.handleLine([]byte(line))
	if s.client == nil {
		t.Fatalf("login failed: %q", line)
	}
}

func loginPilot(t *testing.T, srv *Server, callsign, cid string) (*session, *fakeTransport) {
	t.Helper()
	s, tr := newTestSession(srv)
	login(t, s, "#AP"+callsign+":SERVER:"+cid+":secret:1:9:0:Test Pilot")
	return s, tr
}

func loginATC(t *testing.T, srv *Server, callsign, cid string) (*session, *fakeTransport) {
	t.Helper()
	s, tr := newTestSession(srv)
	login(t, s, "#AA"+callsign+":SERVER:Test ATC:"+cid+":secret:5:9")
	return s, tr
}

///////////////////////////////////////////////////////////////////////////

func TestLoginPilot(t *testing.T) {
	srv := newTestServer(t)
	s, tr := loginPilot(t, srv, "N123", "100001")

	if _, ok := srv.registry.Get("N123"); !ok {
		t.Fatal("client not in registry after login")
	}
	if s.client.Rating != 1 {
		t.Errorf("Rating = %d, want the requested 1", s.client.Rating)
	}

	motd := tr.linesWith("#TMserver:N123:")
	if len(motd) != 1 || motd[0] != "#TMserver:N123:Welcome aboard" {
		t.Errorf("motd = %v", motd)
	}
}

func TestLoginAnnounced(t *testing.T) {
	srv := newTestServer(t)
	_, tr1 := loginPilot(t, srv, "N123", "100001")
	loginATC(t, srv, "SFO_TWR", "100001")

	adds := tr1.linesWith("#AASFO_TWR:")
	if len(adds) != 1 || adds[0] != "#AASFO_TWR:SERVER:Test ATC:100001::5" {
		t.Errorf("announce = %v", adds)
	}
}

func TestPilotAnnounceLayout(t *testing.T) {
	srv := newTestServer(t)
	_, tr1 := loginATC(t, srv, "SFO_TWR", "100001")

	// The slot after the rating repeats the rating; the protocol
	// revision is never rebroadcast.
	s, _ := newTestSession(srv)
	login(t, s, "#APCSN1012:SERVER:1012:secret:1:9:0:Real Name")

	adds := tr1.linesWith("#APCSN1012:")
	if len(adds) != 1 || adds[0] != "#APCSN1012:SERVER:1012::1:1:0" {
		t.Errorf("announce = %v, want [#APCSN1012:SERVER:1012::1:1:0]", adds)
	}
}

func TestLoginFailures(t *testing.T) {
	srv := newTestServer(t)

	for _, tc := range []struct {
		name   string
		line   string
		errno  string
		closed bool
	}{
		{"bad callsign", "#APA:SERVER:100001:secret:1:9:0:Test", ":002:", true},
		{"bad protocol", "#APN99:SERVER:100001:secret:1:8:0:Test", ":010:", true},
		{"unknown cid", "#APN99:SERVER:999999:secret:1:9:0:Test", ":006:", true},
		{"wrong password", "#APN99:SERVER:100001:nope:1:9:0:Test", ":006:", true},
		{"suspended", "#APN99:SERVER:200001:secret:1:9:0:Test", ":013:", true},
		{"level too high", "#APN99:SERVER:100001:secret:9:9:0:Test", ":011:", true},
		{"short packet", "#APN99:SERVER:100001", ":004:", false},
	} {
		s, tr := newTestSession(srv)
		s.handleLine([]byte(tc.line))
		if s.client != nil {
			t.Errorf("%s: login unexpectedly succeeded", tc.name)
			continue
		}
		errs := tr.linesWith("$ERserver:unknown")
		if len(errs) != 1 || !strings.Contains(errs[0], tc.errno) {
			t.Errorf("%s: errors = %v, want errno %s", tc.name, errs, tc.errno)
		}
		if tr.Closed() != tc.closed {
			t.Errorf("%s: closed = %v, want %v", tc.name, tr.Closed(), tc.closed)
		}
	}
}

func TestRevisionRejectPacket(t *testing.T) {
	srv := newTestServer(t)
	s, tr := newTestSession(srv)

	// The env field of the revision error is empty, not the offered
	// protocol number.
	s.handleLine([]byte("#APCSN1012:SERVER:1012:secret:1:8:0:Real Name"))
	errs := tr.linesWith("$ER")
	if len(errs) != 1 || errs[0] != "$ERserver:unknown:010::Invalid protocol revision" {
		t.Errorf("errors = %v", errs)
	}
	if !tr.Closed() {
		t.Error("revision mismatch is fatal")
	}
}

func TestLoginDuplicateCallsign(t *testing.T) {
	srv := newTestServer(t)
	loginPilot(t, srv, "N123", "100001")

	s, tr := newTestSession(srv)
	s.handleLine([]byte("#APN123:SERVER:100001:secret:1:9:0:Test Pilot"))
	if s.client != nil {
		t.Fatal("duplicate callsign login succeeded")
	}
	errs := tr.linesWith("$ER")
	if len(errs) != 1 || !strings.Contains(errs[0], ":001:") {
		t.Errorf("errors = %v", errs)
	}
	if tr.Closed() {
		t.Error("callsign-in-use is not fatal; the session should stay open")
	}
}

func TestSourceInvalid(t *testing.T) {
	srv := newTestServer(t)
	s, tr := loginPilot(t, srv, "N123", "100001")

	s.handleLine([]byte("#TMWRONG:*:hello"))
	errs := tr.linesWith("$ER")
	if len(errs) != 1 || !strings.Contains(errs[0], ":005:") {
		t.Errorf("errors = %v", errs)
	}

	// Before login a packet that needs one is dropped without a reply.
	s2, tr2 := newTestSession(srv)
	s2.handleLine([]byte("#TMN456:*:hello"))
	if got := tr2.Lines(); len(got) != 0 {
		t.Errorf("pre-login packet answered: %v", got)
	}
}

func TestSyntaxError(t *testing.T) {
	srv := newTestServer(t)
	s, tr := loginPilot(t, srv, "N123", "100001")

	s.handleLine([]byte("bogus:line"))
	errs := tr.linesWith("$ER")
	if len(errs) != 1 || !strings.Contains(errs[0], ":004:") {
		t.Errorf("errors = %v", errs)
	}
}

func TestPingServer(t *testing.T) {
	srv := newTestServer(t)
	s, tr := loginPilot(t, srv, "N123", "100001")

	s.handleLine([]byte("$PIN123:SERVER:1724600000"))
	pongs := tr.linesWith("$PO")
	if len(pongs) != 1 || pongs[0] != "$POserver:N123:1724600000" {
		t.Errorf("pongs = %v", pongs)
	}
}

func TestPositionBroadcast(t *testing.T) {
	srv := newTestServer(t)
	s1, _ := loginPilot(t, srv, "N123", "100001")
	s2, tr2 := loginPilot(t, srv, "N456", "100001")
	s3, tr3 := loginPilot(t, srv, "N789", "100001")
	s4, tr4 := loginATC(t, srv, "SFO_TWR", "100001")

	// Reporter at (0,1); nearby pilot one degree north, distant pilot
	// eight degrees north, tower with a 100 nm visual range one degree
	// north.
	s2.handleLine([]byte("@N:N456:1200:1:1:0:10000:250:4261412864:5"))
	s3.handleLine([]byte("@N:N789:1200:1:8:0:0:250:4261412864:5"))
	s4.handleLine([]byte("%SFO_TWR:118700:4:100:5:1:0:0"))

	pos := "@N:N123:1200:1:0:1:10000:250:4261412864:5"
	s1.handleLine([]byte(pos))

	if got := tr2.linesWith("@N:N123"); len(got) != 1 || got[0] != pos {
		t.Errorf("near pilot got %v", got)
	}
	if got := tr3.linesWith("@N:N123"); len(got) != 0 {
		t.Errorf("distant pilot got %v", got)
	}
	if got := tr4.linesWith("@N:N123"); len(got) != 1 {
		t.Errorf("tower got %v", got)
	}
}

func TestPlanFilingAndQuery(t *testing.T) {
	srv := newTestServer(t)
	s1, _ := loginPilot(t, srv, "N123", "100001")
	s2, tr2 := loginATC(t, srv, "SFO_TWR", "100001")

	s1.handleLine([]byte("$FPN123:SERVER:I:B738:420:KSFO:1200:1215:35000:KLAX:1:15:3:0:KSAN:rmk:DCT"))

	relayed := tr2.linesWith("$FPN123:*A:")
	if len(relayed) != 1 || relayed[0] != "$FPN123:*A:I:B738:420:KSFO:1200:1215:35000:KLAX:1:15:3:0:KSAN:rmk:DCT" {
		t.Fatalf("relayed plan = %v", relayed)
	}

	// Controllers can pull the plan back out of the server.
	s2.handleLine([]byte("$CQSFO_TWR:SERVER:FP:N123"))
	if got := tr2.linesWith("$FPN123:SFO_TWR:"); len(got) != 1 {
		t.Errorf("queried plan = %v", got)
	}

	// Pilots cannot.
	s3, tr3 := loginPilot(t, srv, "N456", "100001")
	s3.handleLine([]byte("$CQN456:SERVER:FP:N123"))
	if got := tr3.linesWith("$FP"); len(got) != 0 {
		t.Errorf("pilot received a plan: %v", got)
	}

	// Querying a plan that was never filed.
	s2.handleLine([]byte("$CQSFO_TWR:SERVER:FP:N456"))
	if errs := tr2.linesWith("$ER"); len(errs) != 1 || !strings.Contains(errs[0], ":008:") {
		t.Errorf("errors = %v", errs)
	}
}

func TestRealnameQuery(t *testing.T) {
	srv := newTestServer(t)
	loginPilot(t, srv, "N123", "100001")
	s2, tr2 := loginATC(t, srv, "SFO_TWR", "100001")

	s2.handleLine([]byte("$CQSFO_TWR:SERVER:RN:N123"))
	got := tr2.linesWith("$CR")
	if len(got) != 1 || got[0] != "$CRN123:SFO_TWR:RN:Test Pilot:USER:1" {
		t.Errorf("replies = %v", got)
	}
}

func TestPrivateMessageRelay(t *testing.T) {
	srv := newTestServer(t)
	s1, tr1 := loginPilot(t, srv, "N123", "100001")
	_, tr2 := loginPilot(t, srv, "N456", "100001")

	msg := "#TMN123:N456:see you on downwind"
	s1.handleLine([]byte(msg))
	if got := tr2.linesWith("#TMN123:"); len(got) != 1 || got[0] != msg {
		t.Errorf("relayed = %v", got)
	}

	// A message to a dead callsign is lost quietly, not answered with
	// an error.
	before := len(tr1.Lines())
	s1.handleLine([]byte("#TMN123:NOBODY:anyone there?"))
	if got := tr1.Lines(); len(got) != before {
		t.Errorf("dead destination answered: %v", got[before:])
	}
}

func TestHandoffIsUnicastOnly(t *testing.T) {
	srv := newTestServer(t)
	s1, tr1 := loginATC(t, srv, "SFO_TWR", "100001")
	loginATC(t, srv, "OAK_CTR", "100001")

	s1.handleLine([]byte("$HOSFO_TWR:*A:N123"))
	if errs := tr1.linesWith("$ER"); len(errs) != 1 || !strings.Contains(errs[0], ":004:") {
		t.Errorf("errors = %v", errs)
	}
}

func TestWeatherRequest(t *testing.T) {
	srv := newTestServer(t)
	s, tr := loginPilot(t, srv, "N123", "100001")

	s.handleLine([]byte("#RWN123:SERVER:KSFO"))
	if got := tr.linesWith("#TDserver:N123:"); len(got) != 1 {
		t.Errorf("temp data = %v", got)
	} else if !strings.HasSuffix(got[0], ":2992") {
		t.Errorf("temp data should end with the barometer: %q", got[0])
	}
	if got := tr.linesWith("#WDserver:N123:"); len(got) != 1 {
		t.Errorf("wind data = %v", got)
	}
	if got := tr.linesWith("#CDserver:N123:"); len(got) != 1 {
		t.Errorf("cloud data = %v", got)
	}

	s.handleLine([]byte("#RWN123:SERVER:ZZZZ"))
	if errs := tr.linesWith("$ER"); len(errs) != 1 || !strings.Contains(errs[0], ":009:ZZZZ:") {
		t.Errorf("errors = %v", errs)
	}
}

func TestAcarsMETAR(t *testing.T) {
	srv := newTestServer(t)
	s, tr := loginPilot(t, srv, "N123", "100001")

	s.handleLine([]byte("$AXN123:SERVER:METAR:KSFO"))
	got := tr.linesWith("$AR")
	if len(got) != 1 || got[0] != "$ARserver:N123:METAR:KSFO 251756Z 28015KT 10SM SCT030 15/08 A2992" {
		t.Errorf("replies = %v", got)
	}
}

func TestKill(t *testing.T) {
	srv := newTestServer(t)
	_, trTarget := loginPilot(t, srv, "N456", "100001")

	// A plain member may not kill.
	p, trP := loginPilot(t, srv, "N789", "100001")
	p.handleLine([]byte("$!!N789:N456:bye"))
	if got := trP.linesWith("#TMserver:N789:You are not allowed"); len(got) != 1 {
		t.Errorf("refusal = %v", got)
	}
	if trTarget.Closed() {
		t.Fatal("target closed by an unprivileged kill")
	}

	// A supervisor may, and gets an acknowledgment before the kill is
	// delivered.
	sup, trSup := newTestSession(srv)
	login(t, sup, "#AASUP:SERVER:Test Sup:300001:secret:12:9")
	sup.handleLine([]byte("$!!SUP:N456:bye"))
	if got := trSup.linesWith("#TMserver:SUP:Attempting"); len(got) != 1 || got[0] != "#TMserver:SUP:Attempting to kill N456" {
		t.Errorf("ack = %v", got)
	}
	if got := trTarget.linesWith("$!!SERVER:N456:"); len(got) != 1 || got[0] != "$!!SERVER:N456:bye" {
		t.Errorf("kill packet = %v", got)
	}
	if !trTarget.Closed() {
		t.Error("target should be closed after a kill")
	}
}

func TestRemoveAnnounced(t *testing.T) {
	srv := newTestServer(t)
	s1, tr1 := loginPilot(t, srv, "N123", "100001")
	_, tr2 := loginPilot(t, srv, "N456", "100001")

	s1.handleLine([]byte("#DPN123"))
	if got := tr2.linesWith("#DPN123:"); len(got) != 1 || got[0] != "#DPN123:100001" {
		t.Errorf("departure = %v", got)
	}
	if _, ok := srv.registry.Get("N123"); ok {
		t.Error("client still registered after remove")
	}
	if !tr1.Closed() {
		t.Error("transport should close after remove")
	}

	// Disconnect cleanup must not announce a second time.
	s1.cleanup()
	if got := tr2.linesWith("#DPN123:"); len(got) != 1 {
		t.Errorf("departure announced twice: %v", got)
	}
}

func TestMOTDEncoding(t *testing.T) {
	lines, err := encodeMOTD([]string{"中文测试"}, "gbk")
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0] == "中文测试" {
		t.Errorf("gbk transcode did not change the bytes: %q", lines)
	}

	if _, err := encodeMOTD([]string{"x"}, "no-such-charset"); err == nil {
		t.Error("unknown charset should be rejected")
	}
}
