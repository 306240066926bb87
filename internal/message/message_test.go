package message

import (
	"strings"
	"testing"
	"time"
)

func TestEncodeOmitsEmptySections(t *testing.T) {
	raw, err := (&Message{Type: TypeLast}).Encode()
	if err != nil {
		t.Fatal(err)
	}
	if got := string(raw); got != `{"type":"LAST"}` {
		t.Fatalf("encoded = %s", got)
	}
}

func TestDecodeStatusResponse(t *testing.T) {
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	in := &Message{
		Type: TypeStatusResponse,
		Status: &Status{
			Version: "dev",
			Chain:   ChainInfo{State: "active", Self: "0x1a2b", Changes: 3},
			Saved:   2,
			Last:    &EventInfo{Kind: "snapshot_persisted", Path: "/tmp/clip2web/x.png", Time: at},
		},
	}
	raw, err := in.Encode()
	if err != nil {
		t.Fatal(err)
	}
	out, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	st := out.Status
	if st == nil || st.Chain.State != "active" || st.Saved != 2 || st.Last == nil || !st.Last.Time.Equal(at) {
		t.Fatalf("decoded %+v", st)
	}
}

func TestDecodeRejects(t *testing.T) {
	for _, in := range []string{`{`, `{}`, `{"error":"x"}`} {
		if _, err := Decode([]byte(in)); err == nil {
			t.Errorf("Decode(%s) accepted", in)
		}
	}
}

func TestErrorf(t *testing.T) {
	m := Errorf("unsupported request %q", "COPY")
	if m.Type != TypeError || !strings.Contains(m.Error, `"COPY"`) {
		t.Fatalf("got %+v", m)
	}
}
