package bridge_test

import (
	"net"
	"testing"

	"cncfw/config"
	"cncfw/host/bridge"
	"cncfw/status"
)

func newFixture(t *testing.T) (*bridge.Client, *config.Registry) {
	t.Helper()

	serverConn, clientConn := net.Pipe()

	cfg := config.NewRegistry()
	xvm := 1000.0
	cfg.Register("xvm", config.KindFloatLengthUnit,
		func() float64 { return xvm },
		func(v float64) error { xvm = v; return nil })

	reporter := status.NewReporter(cfg)
	if err := reporter.SetTokens([]string{"xvm"}); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}

	server := bridge.NewServer(cfg, reporter, serverConn)
	go server.Serve()

	client := bridge.NewClient(clientConn)
	t.Cleanup(func() { client.Close() })

	return client, cfg
}

func TestClientGetTokenReadsConfiguredValue(t *testing.T) {
	client, _ := newFixture(t)

	v, err := client.GetToken("xvm")
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if v != 1000 {
		t.Errorf("expected 1000, got %v", v)
	}
}

func TestClientSetTokenThenGetTokenRoundTrips(t *testing.T) {
	client, _ := newFixture(t)

	if err := client.SetToken("xvm", 1500); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	v, err := client.GetToken("xvm")
	if err != nil {
		t.Fatalf("GetToken after set: %v", err)
	}
	if v != 1500 {
		t.Errorf("expected 1500 after SetToken, got %v", v)
	}
}

func TestClientGetTokenUnknownNameErrors(t *testing.T) {
	client, _ := newFixture(t)

	if _, err := client.GetToken("nope"); err == nil {
		t.Error("expected an error for an unregistered token")
	}
}

func TestClientRequestStatusReflectsLiveValue(t *testing.T) {
	client, _ := newFixture(t)

	if err := client.SetToken("xvm", 2000); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	report, err := client.RequestStatus()
	if err != nil {
		t.Fatalf("RequestStatus: %v", err)
	}
	if report["xvm"] != 2000 {
		t.Errorf("expected status report to carry updated xvm=2000, got %v", report["xvm"])
	}
}
