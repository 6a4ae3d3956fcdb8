package ipc

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []Frame{
		{Type: TypeStdinData, Payload: []byte("hello")},
		{Type: TypeResize, Payload: EncodeResize(100, 30)},
		{Type: TypeResetSize, Payload: nil},
		{Type: TypeKill, Payload: nil},
		{Type: TypeKill, Payload: EncodeKillSignal(9)},
		{Type: TypeUpdateTitle, Payload: []byte("new name")},
		{Type: TypeError, Payload: []byte("boom")},
	}
	for _, f := range cases {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame(%v): %v", f.Type, err)
		}
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame(%v): %v", f.Type, err)
		}
		if got.Type != f.Type || !bytes.Equal(got.Payload, f.Payload) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
		}
	}
}

func TestFrameTooLarge(t *testing.T) {
	f := Frame{Type: TypeStdinData, Payload: make([]byte, MaxPayload+1)}
	if err := WriteFrame(&bytes.Buffer{}, f); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestFrameFuzzPayloads(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		n := rng.Intn(4096)
		payload := make([]byte, n)
		rng.Read(payload)
		f := Frame{Type: Type(rng.Intn(256)), Payload: payload}

		var buf bytes.Buffer
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if got.Type != f.Type || !bytes.Equal(got.Payload, f.Payload) {
			t.Fatalf("fuzz mismatch at %d", i)
		}
	}
}

func TestResizeCodec(t *testing.T) {
	cols, rows, err := DecodeResize(EncodeResize(123, 45))
	if err != nil {
		t.Fatalf("DecodeResize: %v", err)
	}
	if cols != 123 || rows != 45 {
		t.Fatalf("got %dx%d", cols, rows)
	}
	if _, _, err := DecodeResize([]byte("garbage")); err == nil {
		t.Fatal("expected error for malformed resize payload")
	}
}

func TestKillSignalDefault(t *testing.T) {
	sig, err := DecodeKillSignal(nil)
	if err != nil {
		t.Fatalf("DecodeKillSignal: %v", err)
	}
	if sig != DefaultKillSignal {
		t.Fatalf("got %d, want %d", sig, DefaultKillSignal)
	}
}
