package netsync

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"XivSync/types"
)

type received struct {
	seq uint64
	ev  types.Event
}

func TestClientLoopback(t *testing.T) {
	srv, events, _, _ := startServer(t, ServerConfig{HeartbeatInterval: 50 * time.Millisecond})

	client, err := Dial(ClientConfig{HostAddress: srv.Addr().String(), HeartbeatInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	got := make(chan received, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx, HandlerFunc(func(seq uint64, ev types.Event) { got <- received{seq, ev} }))
	}()

	waitFor(t, "client registration", func() bool { return srv.Sessions() == 1 })
	events <- types.ZoneChanged{Zone: 641}
	events <- types.TargetsChanged{Targets: types.Target{Target: 0x1234}}

	for i, want := range []types.Event{types.ZoneChanged{Zone: 641}, types.TargetsChanged{Targets: types.Target{Target: 0x1234}}} {
		select {
		case r := <-got:
			if r.seq != uint64(i+1) || r.ev != want {
				t.Errorf("Got seq %d %v, want seq %d %v", r.seq, r.ev, i+1, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for event %d", i)
		}
	}

	// Heartbeats keep the session alive well past three server intervals.
	time.Sleep(300 * time.Millisecond)
	if n := srv.Sessions(); n != 1 {
		t.Errorf("Expected the session to survive, got %d sessions", n)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if stats := client.Stats(); stats.Received != 2 || stats.Gaps != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestClientUnableToConnect(t *testing.T) {
	host, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer host.Close()

	client, err := Dial(ClientConfig{HostAddress: host.LocalAddr().String(), ConnectTimeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	err = client.Run(context.Background(), HandlerFunc(func(uint64, types.Event) {}))
	if !errors.Is(err, ErrUnableToConnect) {
		t.Fatalf("Expected ErrUnableToConnect, got %v", err)
	}
	var term *TerminationError
	if !errors.As(err, &term) {
		t.Errorf("Expected a TerminationError, got %T", err)
	}
}

func TestClientReadTimeout(t *testing.T) {
	host, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer host.Close()

	// Answer the connect token once, then go silent.
	go func() {
		buf := make([]byte, 64)
		n, addr, err := host.ReadFromUDP(buf)
		if err != nil || !bytes.Equal(buf[:n], ConnectMagic[:]) {
			return
		}
		frame, _ := EncodeFrame(types.ZoneChanged{Zone: 1}, 1)
		host.WriteToUDP(frame, addr)
	}()

	client, err := Dial(ClientConfig{
		HostAddress:    host.LocalAddr().String(),
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    100 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	err = client.Run(context.Background(), HandlerFunc(func(uint64, types.Event) {}))
	if !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("Expected ErrReadTimeout, got %v", err)
	}
}

func TestClientCountsSequenceAnomalies(t *testing.T) {
	c := &Client{}
	for _, seq := range []uint64{1, 2, 5, 4, 6} {
		c.trackSequence(seq)
	}
	stats := c.Stats()
	if stats.Gaps != 1 || stats.Reordered != 1 {
		t.Errorf("Expected one gap and one reorder, got %+v", stats)
	}
}

func TestClientDropsMalformedFrames(t *testing.T) {
	host, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer host.Close()

	go func() {
		buf := make([]byte, 64)
		n, addr, err := host.ReadFromUDP(buf)
		if err != nil || !bytes.Equal(buf[:n], ConnectMagic[:]) {
			return
		}
		host.WriteToUDP([]byte{9, 1, 0, 0, 0, 0, 0, 0, 0, 0}, addr)
		host.WriteToUDP([]byte{1, 2}, addr)
		frame, _ := EncodeFrame(types.ZoneChanged{Zone: 7}, 3)
		host.WriteToUDP(frame, addr)
	}()

	client, err := Dial(ClientConfig{HostAddress: host.LocalAddr().String(), ConnectTimeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	got := make(chan types.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx, HandlerFunc(func(_ uint64, ev types.Event) { got <- ev }))
	}()

	select {
	case ev := <-got:
		if ev != (types.ZoneChanged{Zone: 7}) {
			t.Errorf("Expected ZoneChanged(7), got %v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("The valid frame after the malformed ones was not delivered")
	}
	cancel()
	<-done

	if stats := client.Stats(); stats.Malformed != 2 || stats.Received != 1 {
		t.Errorf("Expected 2 malformed and 1 received, got %+v", stats)
	}
}

func TestClientResendsConnectToken(t *testing.T) {
	host, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer host.Close()

	// Drop the first connect token as if it were lost, answer the second.
	tokens := make(chan int, 1)
	go func() {
		buf := make([]byte, 64)
		seen := 0
		for {
			n, addr, err := host.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if !bytes.Equal(buf[:n], ConnectMagic[:]) {
				continue
			}
			seen++
			if seen == 2 {
				frame, _ := EncodeFrame(types.ZoneChanged{Zone: 1}, 1)
				host.WriteToUDP(frame, addr)
				tokens <- seen
				return
			}
		}
	}()

	client, err := Dial(ClientConfig{
		HostAddress:       host.LocalAddr().String(),
		HeartbeatInterval: 20 * time.Millisecond,
		ConnectTimeout:    2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	got := make(chan types.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx, HandlerFunc(func(_ uint64, ev types.Event) {
			select {
			case got <- ev:
			default:
			}
		}))
	}()

	select {
	case <-got:
	case err := <-done:
		t.Fatalf("Client gave up before reconnecting: %v", err)
	case <-time.After(time.Second):
		t.Fatal("Client did not resend its connect token")
	}
	cancel()
	<-done
	if seen := <-tokens; seen != 2 {
		t.Errorf("Host saw %d connect tokens", seen)
	}
}
