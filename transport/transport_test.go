package transport

import (
	"errors"
	"io"
	"net"
	"testing"

	"github.com/xtaci/qpp"
	"github.com/xtaci/sshpipe/pipe"
)

func TestSelectBlockCryptKnownCipher(t *testing.T) {
	block, name := SelectBlockCrypt("aes-128", "a passphrase")
	if block == nil {
		t.Fatal("SelectBlockCrypt(aes-128) returned nil block")
	}
	if name != "aes-128" {
		t.Fatalf("name = %q, want aes-128", name)
	}
}

func TestSelectBlockCryptIsCaseInsensitive(t *testing.T) {
	_, name := SelectBlockCrypt("AES-128", "a passphrase")
	if name != "AES-128" {
		t.Fatalf("name = %q, want AES-128 (echoed as typed)", name)
	}
}

func TestSelectBlockCryptUnknownFallsBackToAES(t *testing.T) {
	block, name := SelectBlockCrypt("not-a-real-cipher", "a passphrase")
	if block == nil {
		t.Fatal("fallback returned nil block")
	}
	if name != "aes" {
		t.Fatalf("name = %q, want aes", name)
	}
}

func TestParseMultiPortSingle(t *testing.T) {
	mp, err := ParseMultiPort("example.com:20000")
	if err != nil {
		t.Fatalf("ParseMultiPort: %v", err)
	}
	if mp.Host != "example.com" || mp.MinPort != 20000 || mp.MaxPort != 20000 {
		t.Fatalf("parsed %+v", mp)
	}
	if got := mp.Next(); got != "example.com:20000" {
		t.Fatalf("Next() = %q, want example.com:20000", got)
	}
}

func TestParseMultiPortRangeRoundRobins(t *testing.T) {
	mp, err := ParseMultiPort("host:20000-20002")
	if err != nil {
		t.Fatalf("ParseMultiPort: %v", err)
	}
	want := []string{"host:20000", "host:20001", "host:20002", "host:20000"}
	for i, w := range want {
		if got := mp.Next(); got != w {
			t.Fatalf("Next() #%d = %q, want %q", i, got, w)
		}
	}
}

func TestParseMultiPortRejectsInvertedRange(t *testing.T) {
	if _, err := ParseMultiPort("host:20010-20000"); err == nil {
		t.Fatal("expected error for inverted port range")
	}
}

func TestParseMultiPortRejectsMalformed(t *testing.T) {
	if _, err := ParseMultiPort("not-an-address"); err == nil {
		t.Fatal("expected error for malformed address")
	}
}

func TestValidateQPPParamsRejectsNonPositiveCount(t *testing.T) {
	_, err := ValidateQPPParams(0, "some-key")
	if err == nil {
		t.Fatal("expected error for zero count")
	}
	if !errors.Is(err, pipe.ErrArgument) {
		t.Fatalf("err = %v, want a pipe.KindArgument error", err)
	}
}

func TestValidateQPPParamsWarnsOnShortKey(t *testing.T) {
	warnings, err := ValidateQPPParams(61, "short")
	if err != nil {
		t.Fatalf("ValidateQPPParams: %v", err)
	}
	if len(warnings) == 0 {
		t.Fatal("expected at least one warning for a short key")
	}
}

func TestBuildSmuxConfigValidatesVersion(t *testing.T) {
	if _, err := BuildSmuxConfig(99, 4194304, 2097152, 8192, 10); err == nil {
		t.Fatal("expected error for unsupported smux version")
	}
	if _, err := BuildSmuxConfig(2, 4194304, 2097152, 8192, 10); err != nil {
		t.Fatalf("BuildSmuxConfig(2, ...): %v", err)
	}
}

func TestBuildSmuxConfigDisablesKeepAliveOnNonPositiveInterval(t *testing.T) {
	cfg, err := BuildSmuxConfig(2, 4194304, 2097152, 8192, 0)
	if err != nil {
		t.Fatalf("BuildSmuxConfig: %v", err)
	}
	if !cfg.KeepAliveDisabled {
		t.Fatal("expected KeepAliveDisabled for a non-positive keepAliveSeconds")
	}

	cfg, err = BuildSmuxConfig(2, 4194304, 2097152, 8192, 10)
	if err != nil {
		t.Fatalf("BuildSmuxConfig: %v", err)
	}
	if cfg.KeepAliveDisabled {
		t.Fatal("expected keepalive enabled for a positive keepAliveSeconds")
	}
}

func TestCompStreamStatsTracksPlainAndWireBytes(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	cs := NewCompStream(client)
	defer cs.Close()

	payload := make([]byte, 4096)
	done := make(chan struct{})
	go func() {
		defer close(done)
		peer := NewCompStream(server)
		defer peer.Close()
		buf := make([]byte, len(payload))
		io.ReadFull(peer, buf)
	}()

	if _, err := cs.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	<-done

	stats := cs.Stats()
	if stats.PlainBytesWritten != uint64(len(payload)) {
		t.Fatalf("PlainBytesWritten = %d, want %d", stats.PlainBytesWritten, len(payload))
	}
	if stats.WireBytesWritten == 0 {
		t.Fatal("expected non-zero WireBytesWritten")
	}
}

func TestQPPPortStatsTracksEncryptedAndDecryptedBytes(t *testing.T) {
	seed := []byte("a seed long enough for qpp tests to exercise")
	padA := qpp.NewQPP(seed, 61)
	padB := qpp.NewQPP(seed, 61)

	client, server := net.Pipe()
	defer server.Close()

	a := NewQPPPort(client, padA, seed)
	b := NewQPPPort(server, padB, seed)
	defer a.Close()

	payload := []byte("quantum permutation pad round trip")
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, len(payload))
		io.ReadFull(b, buf)
	}()

	if _, err := a.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	<-done

	stats := a.Stats()
	if stats.BytesEncrypted != uint64(len(payload)) {
		t.Fatalf("BytesEncrypted = %d, want %d", stats.BytesEncrypted, len(payload))
	}
	if b.Stats().BytesDecrypted != uint64(len(payload)) {
		t.Fatalf("BytesDecrypted = %d, want %d", b.Stats().BytesDecrypted, len(payload))
	}
}

func TestConfigApplyModeSetsKCPTuningQuadruple(t *testing.T) {
	c := &Config{Mode: "fast3"}
	c.ApplyMode()
	if c.NoDelay != 1 || c.Interval != 10 || c.Resend != 2 || c.NoCongestion != 1 {
		t.Fatalf("fast3 tuning = %+v", c)
	}
}
