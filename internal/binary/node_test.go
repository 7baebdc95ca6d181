package binary

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Node{
		{Tag: "action", Attrs: map[string]string{}, Content: []Node{}},
		{Tag: "iq", Attrs: map[string]string{"type": "set", "id": "1.--0"}, Content: []byte("payload")},
		{
			Tag:   "action",
			Attrs: map[string]string{"epoch": "3", "type": "set"},
			Content: []Node{
				{Tag: "item", Attrs: map[string]string{"jid": "1@s.whatsapp.net"}},
				{Tag: "item", Attrs: map[string]string{"jid": "2@s.whatsapp.net"}, Content: []byte{0x01, 0x02}},
			},
		},
		{Tag: "leaf"},
	}

	for i, n := range cases {
		encoded := Encode(n)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("case %d: Decode: %v", i, err)
		}
		if decoded.Tag != n.Tag {
			t.Errorf("case %d: tag = %q, want %q", i, decoded.Tag, n.Tag)
		}
		wantAttrs := n.Attrs
		if wantAttrs == nil {
			wantAttrs = map[string]string{}
		}
		gotAttrs := decoded.Attrs
		if gotAttrs == nil {
			gotAttrs = map[string]string{}
		}
		if !reflect.DeepEqual(gotAttrs, wantAttrs) {
			t.Errorf("case %d: attrs = %v, want %v", i, gotAttrs, wantAttrs)
		}
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	encoded := Encode(Node{Tag: "x"})
	encoded = append(encoded, 0xFF)
	if _, err := Decode(encoded); err == nil {
		t.Fatal("expected error for trailing bytes")
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	encoded := Encode(Node{Tag: "hello", Content: []byte("world")})
	for l := 0; l < len(encoded); l++ {
		if _, err := Decode(encoded[:l]); err == nil {
			t.Fatalf("expected error decoding truncated input of length %d", l)
		}
	}
}
