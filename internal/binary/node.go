// Package binary implements the server's node-tree wire format.
//
// The core connection engine treats this package as an external
// dependency: it only ever calls Encode and Decode. The tree shape is
// [tag, attrs, content] where content is either a byte slice, a list of
// child nodes, or nil.
//
// Encoding is a simple length-prefixed scheme (tag, then attr count and
// attr pairs, then a content-kind byte and the content itself), not the
// token-dictionary format the real client uses on the wire — this
// package exists to give the Crypto Envelope and Framer something real
// to round-trip through in tests, per SPEC_FULL.md §6.
package binary

import (
	"encoding/binary"
	"fmt"
)

// Node is one element of the server's tree format: [tagName, attrs, content].
type Node struct {
	Tag     string
	Attrs   map[string]string
	Content any // nil, []byte, or []Node
}

const (
	contentKindNil byte = iota
	contentKindBytes
	contentKindChildren
)

// Encode serialises a Node to its binary wire representation.
func Encode(n Node) []byte {
	var buf []byte
	buf = appendString(buf, n.Tag)
	buf = appendUint32(buf, uint32(len(n.Attrs)))
	for k, v := range n.Attrs {
		buf = appendString(buf, k)
		buf = appendString(buf, v)
	}

	switch content := n.Content.(type) {
	case nil:
		buf = append(buf, contentKindNil)
	case []byte:
		buf = append(buf, contentKindBytes)
		buf = appendUint32(buf, uint32(len(content)))
		buf = append(buf, content...)
	case []Node:
		buf = append(buf, contentKindChildren)
		buf = appendUint32(buf, uint32(len(content)))
		for _, child := range content {
			buf = appendUint32(buf, uint32(len(Encode(child))))
			buf = append(buf, Encode(child)...)
		}
	default:
		panic(fmt.Sprintf("binary: unsupported content type %T", n.Content))
	}
	return buf
}

// Decode parses a Node from its binary wire representation.
func Decode(data []byte) (Node, error) {
	n, rest, err := decodeNode(data)
	if err != nil {
		return Node{}, err
	}
	if len(rest) != 0 {
		return Node{}, fmt.Errorf("binary: %d trailing bytes after node", len(rest))
	}
	return n, nil
}

func decodeNode(data []byte) (Node, []byte, error) {
	tag, data, err := readString(data)
	if err != nil {
		return Node{}, nil, fmt.Errorf("binary: tag: %w", err)
	}

	attrCount, data, err := readUint32(data)
	if err != nil {
		return Node{}, nil, fmt.Errorf("binary: attr count: %w", err)
	}
	var attrs map[string]string
	if attrCount > 0 {
		attrs = make(map[string]string, attrCount)
	}
	for i := uint32(0); i < attrCount; i++ {
		var k, v string
		if k, data, err = readString(data); err != nil {
			return Node{}, nil, fmt.Errorf("binary: attr key: %w", err)
		}
		if v, data, err = readString(data); err != nil {
			return Node{}, nil, fmt.Errorf("binary: attr value: %w", err)
		}
		attrs[k] = v
	}

	if len(data) < 1 {
		return Node{}, nil, fmt.Errorf("binary: truncated content kind")
	}
	kind := data[0]
	data = data[1:]

	n := Node{Tag: tag, Attrs: attrs}
	switch kind {
	case contentKindNil:
		// n.Content stays nil
	case contentKindBytes:
		var length uint32
		if length, data, err = readUint32(data); err != nil {
			return Node{}, nil, fmt.Errorf("binary: content length: %w", err)
		}
		if uint32(len(data)) < length {
			return Node{}, nil, fmt.Errorf("binary: content truncated")
		}
		n.Content = append([]byte(nil), data[:length]...)
		data = data[length:]
	case contentKindChildren:
		var count uint32
		if count, data, err = readUint32(data); err != nil {
			return Node{}, nil, fmt.Errorf("binary: child count: %w", err)
		}
		children := make([]Node, 0, count)
		for i := uint32(0); i < count; i++ {
			var childLen uint32
			if childLen, data, err = readUint32(data); err != nil {
				return Node{}, nil, fmt.Errorf("binary: child %d length: %w", i, err)
			}
			if uint32(len(data)) < childLen {
				return Node{}, nil, fmt.Errorf("binary: child %d truncated", i)
			}
			child, rest, err := decodeNode(data[:childLen])
			if err != nil {
				return Node{}, nil, fmt.Errorf("binary: child %d: %w", i, err)
			}
			if len(rest) != 0 {
				return Node{}, nil, fmt.Errorf("binary: child %d has trailing bytes", i)
			}
			children = append(children, child)
			data = data[childLen:]
		}
		n.Content = children
	default:
		return Node{}, nil, fmt.Errorf("binary: unknown content kind %d", kind)
	}
	return n, data, nil
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readUint32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, fmt.Errorf("truncated uint32")
	}
	return binary.BigEndian.Uint32(data[:4]), data[4:], nil
}

func readString(data []byte) (string, []byte, error) {
	length, data, err := readUint32(data)
	if err != nil {
		return "", nil, err
	}
	if uint32(len(data)) < length {
		return "", nil, fmt.Errorf("truncated string")
	}
	return string(data[:length]), data[length:], nil
}
