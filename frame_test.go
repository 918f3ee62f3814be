package dw1000

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		frame Frame
	}{
		{"short compressed", Frame{
			Seq:     42,
			Dest:    ShortAddress(0x0D57, 0x0002),
			Src:     ShortAddress(0x0D57, 0x0001),
			Payload: []byte("hello"),
		}},
		{"short cross pan", Frame{
			Seq:     1,
			Dest:    ShortAddress(0x0D57, 0x0002),
			Src:     ShortAddress(0xBEEF, 0x0001),
			Payload: []byte{0xFF},
		}},
		{"extended source", Frame{
			Seq:     0,
			Dest:    Broadcast(),
			Src:     ExtendedAddress(0xFFFF, 0xDECA000000000001),
			Payload: []byte("ranging"),
		}},
		{"extended both", Frame{
			Seq:     200,
			Dest:    ExtendedAddress(0x0001, 0x1122334455667788),
			Src:     ExtendedAddress(0x0001, 0x8877665544332211),
			Payload: nil,
		}},
		{"empty payload", Frame{
			Dest: Broadcast(),
			Src:  ShortAddress(0xFFFF, 0x0001),
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var buf [MaxPayload]byte
			n, err := c.frame.Encode(buf[:])
			if err != nil {
				t.Fatal(err)
			}
			got, err := DecodeFrame(buf[:n])
			if err != nil {
				t.Fatal(err)
			}
			if got.Seq != c.frame.Seq || got.Dest != c.frame.Dest || got.Src != c.frame.Src {
				t.Errorf("decoded = %+v, want %+v", got, c.frame)
			}
			if !bytes.Equal(got.Payload, c.frame.Payload) {
				t.Errorf("payload = %#v, want %#v", got.Payload, c.frame.Payload)
			}
		})
	}
}

func TestFramePanCompression(t *testing.T) {
	same := Frame{Dest: ShortAddress(0x0D57, 2), Src: ShortAddress(0x0D57, 1)}
	cross := Frame{Dest: ShortAddress(0x0D57, 2), Src: ShortAddress(0xBEEF, 1)}

	var a, b [MaxPayload]byte
	n1, err := same.Encode(a[:])
	if err != nil {
		t.Fatal(err)
	}
	n2, err := cross.Encode(b[:])
	if err != nil {
		t.Fatal(err)
	}
	if n2 != n1+2 {
		t.Errorf("cross pan frame is %d bytes, same pan %d; want 2 byte difference", n2, n1)
	}
}

func TestFrameEncodeTooLarge(t *testing.T) {
	frame := Frame{
		Dest:    Broadcast(),
		Src:     ShortAddress(0xFFFF, 1),
		Payload: make([]byte, MaxPayload),
	}
	var buf [MaxPayload]byte
	if _, err := frame.Encode(buf[:]); !errors.Is(err, ErrBufferTooLarge) {
		t.Errorf("error = %v, want ErrBufferTooLarge", err)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	valid := Frame{Dest: ShortAddress(1, 2), Src: ShortAddress(1, 3), Payload: []byte{9}}
	var raw [MaxPayload]byte
	n, err := valid.Encode(raw[:])
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too short", raw[:2]},
		{"truncated header", raw[:5]},
		{"beacon frame type", []byte{0x00, 0x88, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}},
		{"reserved addressing mode", []byte{0x01, 0x84, 0x00, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := DecodeFrame(c.data); !errors.Is(err, ErrFrame) {
				t.Errorf("error = %v, want ErrFrame", err)
			}
		})
	}

	if _, err := DecodeFrame(raw[:n]); err != nil {
		t.Errorf("valid frame rejected: %v", err)
	}
}
