package dht

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// Command identifies a frame kind on the wire (§6). Values are stable and
// mutually exclusive; the exact byte values are this implementation's own
// choice (the spec leaves them implementation-defined).
type Command byte

const (
	CmdPing Command = iota + 1
	CmdPong
	CmdStore
	CmdPongStore
	CmdFindNode
	CmdPongFindNode
	CmdFindValue
	CmdPongFindValue
	CmdReduce
	CmdPongReduce
)

func (c Command) String() string {
	switch c {
	case CmdPing:
		return "PING"
	case CmdPong:
		return "PONG"
	case CmdStore:
		return "STORE"
	case CmdPongStore:
		return "PONG_STORE"
	case CmdFindNode:
		return "FIND_NODE"
	case CmdPongFindNode:
		return "PONG_FIND_NODE"
	case CmdFindValue:
		return "FIND_VALUE"
	case CmdPongFindValue:
		return "PONG_FIND_VALUE"
	case CmdReduce:
		return "REDUCE"
	case CmdPongReduce:
		return "PONG_REDUCE"
	default:
		return fmt.Sprintf("CMD(%d)", byte(c))
	}
}

// Errors produced by the codec. A decode error is fatal to the connection it
// occurred on, never to the node (§7).
var (
	ErrShortRead      = errors.New("dht: short read decoding frame")
	ErrUnknownCommand = errors.New("dht: unknown command byte")
	ErrBadIPLength    = errors.New("dht: implausible remote IP length")
	ErrValueTooLarge  = errors.New("dht: value exceeds u32 length field")
)

const maxValueLen = 1<<32 - 1

// maxIPLen bounds pack_remote's ip_len byte so a corrupt frame can't make the
// decoder attempt to read an unreasonable number of address bytes.
const maxIPLen = 16

// Header is the common prefix of every frame (§4.1 offsets 0-40): command
// byte, echo, sender id, sender remote.
type Header struct {
	Command      Command
	Echo         Identifier
	SenderID     Identifier
	SenderRemote Remote
}

// packRemote encodes a Remote as {u8 ip_len, u16 port big-endian, ip_len
// bytes of address}. Only IPv4 is produced by this implementation.
func packRemote(r Remote) []byte {
	ip := r.Host.To4()
	if ip == nil {
		ip = net.IPv4zero.To4()
	}
	buf := make([]byte, 3+len(ip))
	buf[0] = byte(len(ip))
	binary.BigEndian.PutUint16(buf[1:3], r.Port)
	copy(buf[3:], ip)
	return buf
}

// unpackRemote decodes a Remote from b, returning the number of bytes
// consumed.
func unpackRemote(b []byte) (Remote, int, error) {
	if len(b) < 3 {
		return Remote{}, 0, ErrShortRead
	}
	ipLen := int(b[0])
	port := binary.BigEndian.Uint16(b[1:3])
	if ipLen <= 0 || ipLen > maxIPLen {
		return Remote{}, 0, ErrBadIPLength
	}
	if len(b) < 3+ipLen {
		return Remote{}, 0, ErrShortRead
	}
	ip := make(net.IP, ipLen)
	copy(ip, b[3:3+ipLen])
	return Remote{Host: ip, Port: port}, 3 + ipLen, nil
}

// packHeader encodes the common frame prefix.
func packHeader(cmd Command, echo, senderID Identifier, senderRemote Remote) []byte {
	buf := make([]byte, 0, 1+IDLen+IDLen+7)
	buf = append(buf, byte(cmd))
	buf = append(buf, echo[:]...)
	buf = append(buf, senderID[:]...)
	buf = append(buf, packRemote(senderRemote)...)
	return buf
}

// unpackHeader decodes the common frame prefix, returning the header and the
// number of bytes consumed.
func unpackHeader(b []byte) (Header, int, error) {
	if len(b) < 1+IDLen+IDLen {
		return Header{}, 0, ErrShortRead
	}
	var h Header
	h.Command = Command(b[0])
	off := 1
	copy(h.Echo[:], b[off:off+IDLen])
	off += IDLen
	copy(h.SenderID[:], b[off:off+IDLen])
	off += IDLen
	remote, n, err := unpackRemote(b[off:])
	if err != nil {
		return Header{}, 0, err
	}
	off += n
	return h, off, nil
}

// packNode encodes a Node as id || pack_remote(node.Remote).
func packNode(n Node) []byte {
	buf := make([]byte, 0, IDLen+7)
	buf = append(buf, n.ID[:]...)
	buf = append(buf, packRemote(n.Remote)...)
	return buf
}

// unpackNode decodes a Node, returning bytes consumed.
func unpackNode(b []byte) (Node, int, error) {
	if len(b) < IDLen {
		return Node{}, 0, ErrShortRead
	}
	var n Node
	copy(n.ID[:], b[:IDLen])
	remote, m, err := unpackRemote(b[IDLen:])
	if err != nil {
		return Node{}, 0, err
	}
	n.Remote = remote
	return n, IDLen + m, nil
}

func putU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// ---------------------------------------------------------------------------
// PING / PONG — empty tails.
// ---------------------------------------------------------------------------

// EncodePing packs a PING frame.
func EncodePing(echo, senderID Identifier, senderRemote Remote) []byte {
	return packHeader(CmdPing, echo, senderID, senderRemote)
}

// EncodePong packs a PONG frame, echoing the request's echo token.
func EncodePong(echo, senderID Identifier, senderRemote Remote) []byte {
	return packHeader(CmdPong, echo, senderID, senderRemote)
}

// ---------------------------------------------------------------------------
// STORE / PONG_STORE
// ---------------------------------------------------------------------------

// StorePayload is the per-command tail of a STORE frame: key and value.
type StorePayload struct {
	Key   Identifier
	Value []byte
}

// EncodeStore packs a STORE frame.
func EncodeStore(echo, senderID Identifier, senderRemote Remote, p StorePayload) ([]byte, error) {
	if len(p.Value) > maxValueLen {
		return nil, ErrValueTooLarge
	}
	buf := packHeader(CmdStore, echo, senderID, senderRemote)
	buf = append(buf, p.Key[:]...)
	buf = putU32(buf, uint32(len(p.Value)))
	buf = append(buf, p.Value...)
	return buf, nil
}

// DecodeStorePayload decodes the STORE tail following the common header.
func DecodeStorePayload(b []byte) (StorePayload, error) {
	if len(b) < IDLen+4 {
		return StorePayload{}, ErrShortRead
	}
	var p StorePayload
	copy(p.Key[:], b[:IDLen])
	n := binary.BigEndian.Uint32(b[IDLen : IDLen+4])
	rest := b[IDLen+4:]
	if uint64(len(rest)) < uint64(n) {
		return StorePayload{}, ErrShortRead
	}
	p.Value = append([]byte(nil), rest[:n]...)
	return p, nil
}

// PongStorePayload is the per-command tail of a PONG_STORE frame.
type PongStorePayload struct {
	Key Identifier
}

// EncodePongStore packs a PONG_STORE frame.
func EncodePongStore(echo, senderID Identifier, senderRemote Remote, key Identifier) []byte {
	buf := packHeader(CmdPongStore, echo, senderID, senderRemote)
	buf = append(buf, key[:]...)
	return buf
}

// DecodePongStorePayload decodes the PONG_STORE tail.
func DecodePongStorePayload(b []byte) (PongStorePayload, error) {
	if len(b) < IDLen {
		return PongStorePayload{}, ErrShortRead
	}
	var p PongStorePayload
	copy(p.Key[:], b[:IDLen])
	return p, nil
}

// ---------------------------------------------------------------------------
// FIND_NODE / PONG_FIND_NODE
// ---------------------------------------------------------------------------

// EncodeFindNode packs a FIND_NODE frame.
func EncodeFindNode(echo, senderID Identifier, senderRemote Remote, target Identifier) []byte {
	buf := packHeader(CmdFindNode, echo, senderID, senderRemote)
	buf = append(buf, target[:]...)
	return buf
}

// DecodeFindNodePayload decodes the FIND_NODE tail (just the target id).
func DecodeFindNodePayload(b []byte) (Identifier, error) {
	if len(b) < IDLen {
		return Identifier{}, ErrShortRead
	}
	var target Identifier
	copy(target[:], b[:IDLen])
	return target, nil
}

// PongFindNodePayload is the per-command tail of a PONG_FIND_NODE frame.
type PongFindNodePayload struct {
	Target Identifier
	Nodes  []Node
}

// EncodePongFindNode packs a PONG_FIND_NODE frame. nodes must not exceed 255
// entries (the count field is a single byte).
func EncodePongFindNode(echo, senderID Identifier, senderRemote Remote, target Identifier, nodes []Node) ([]byte, error) {
	if len(nodes) > 255 {
		return nil, fmt.Errorf("dht: too many nodes in PONG_FIND_NODE: %d", len(nodes))
	}
	buf := packHeader(CmdPongFindNode, echo, senderID, senderRemote)
	buf = append(buf, target[:]...)
	buf = append(buf, byte(len(nodes)))
	for _, n := range nodes {
		buf = append(buf, packNode(n)...)
	}
	return buf, nil
}

// DecodePongFindNodePayload decodes the PONG_FIND_NODE tail.
func DecodePongFindNodePayload(b []byte) (PongFindNodePayload, error) {
	if len(b) < IDLen+1 {
		return PongFindNodePayload{}, ErrShortRead
	}
	var p PongFindNodePayload
	copy(p.Target[:], b[:IDLen])
	count := int(b[IDLen])
	off := IDLen + 1
	p.Nodes = make([]Node, 0, count)
	for i := 0; i < count; i++ {
		n, consumed, err := unpackNode(b[off:])
		if err != nil {
			return PongFindNodePayload{}, err
		}
		p.Nodes = append(p.Nodes, n)
		off += consumed
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// FIND_VALUE / PONG_FIND_VALUE
// ---------------------------------------------------------------------------

// EncodeFindValue packs a FIND_VALUE frame.
func EncodeFindValue(echo, senderID Identifier, senderRemote Remote, key Identifier) []byte {
	buf := packHeader(CmdFindValue, echo, senderID, senderRemote)
	buf = append(buf, key[:]...)
	return buf
}

// DecodeFindValuePayload decodes the FIND_VALUE tail (just the key).
func DecodeFindValuePayload(b []byte) (Identifier, error) {
	if len(b) < IDLen {
		return Identifier{}, ErrShortRead
	}
	var key Identifier
	copy(key[:], b[:IDLen])
	return key, nil
}

// PongFindValuePayload is the per-command tail of a PONG_FIND_VALUE frame. A
// zero-length Value means "not found" (§7, §9 — the explicit resolution of
// the spec's open question about the miss encoding).
type PongFindValuePayload struct {
	Key   Identifier
	Value []byte
}

// Found reports whether this reply represents a storage hit.
func (p PongFindValuePayload) Found() bool {
	return len(p.Value) > 0
}

// EncodePongFindValue packs a PONG_FIND_VALUE frame.
func EncodePongFindValue(echo, senderID Identifier, senderRemote Remote, key Identifier, value []byte) ([]byte, error) {
	if len(value) > maxValueLen {
		return nil, ErrValueTooLarge
	}
	buf := packHeader(CmdPongFindValue, echo, senderID, senderRemote)
	buf = append(buf, key[:]...)
	buf = putU32(buf, uint32(len(value)))
	buf = append(buf, value...)
	return buf, nil
}

// DecodePongFindValuePayload decodes the PONG_FIND_VALUE tail.
func DecodePongFindValuePayload(b []byte) (PongFindValuePayload, error) {
	if len(b) < IDLen+4 {
		return PongFindValuePayload{}, ErrShortRead
	}
	var p PongFindValuePayload
	copy(p.Key[:], b[:IDLen])
	n := binary.BigEndian.Uint32(b[IDLen : IDLen+4])
	rest := b[IDLen+4:]
	if uint64(len(rest)) < uint64(n) {
		return PongFindValuePayload{}, ErrShortRead
	}
	p.Value = append([]byte(nil), rest[:n]...)
	return p, nil
}

// ---------------------------------------------------------------------------
// REDUCE / PONG_REDUCE — codec only; no handler dispatch exists (§9).
// ---------------------------------------------------------------------------

// ReducePayload is the per-command tail of a REDUCE frame.
type ReducePayload struct {
	KeyStart Identifier
	KeyEnd   Identifier
}

// EncodeReduce packs a REDUCE frame.
func EncodeReduce(echo, senderID Identifier, senderRemote Remote, keyStart, keyEnd Identifier) []byte {
	buf := packHeader(CmdReduce, echo, senderID, senderRemote)
	buf = append(buf, keyStart[:]...)
	buf = append(buf, keyEnd[:]...)
	return buf
}

// DecodeReducePayload decodes the REDUCE tail.
func DecodeReducePayload(b []byte) (ReducePayload, error) {
	if len(b) < 2*IDLen {
		return ReducePayload{}, ErrShortRead
	}
	var p ReducePayload
	copy(p.KeyStart[:], b[:IDLen])
	copy(p.KeyEnd[:], b[IDLen:2*IDLen])
	return p, nil
}

// PongReducePayload is the per-command tail of a PONG_REDUCE frame.
type PongReducePayload struct {
	KeyStart Identifier
	KeyEnd   Identifier
	Value    []byte
}

// EncodePongReduce packs a PONG_REDUCE frame.
func EncodePongReduce(echo, senderID Identifier, senderRemote Remote, keyStart, keyEnd Identifier, value []byte) ([]byte, error) {
	if len(value) > maxValueLen {
		return nil, ErrValueTooLarge
	}
	buf := packHeader(CmdPongReduce, echo, senderID, senderRemote)
	buf = append(buf, keyStart[:]...)
	buf = append(buf, keyEnd[:]...)
	buf = putU32(buf, uint32(len(value)))
	buf = append(buf, value...)
	return buf, nil
}

// DecodePongReducePayload decodes the PONG_REDUCE tail.
func DecodePongReducePayload(b []byte) (PongReducePayload, error) {
	if len(b) < 2*IDLen+4 {
		return PongReducePayload{}, ErrShortRead
	}
	var p PongReducePayload
	copy(p.KeyStart[:], b[:IDLen])
	copy(p.KeyEnd[:], b[IDLen:2*IDLen])
	n := binary.BigEndian.Uint32(b[2*IDLen : 2*IDLen+4])
	rest := b[2*IDLen+4:]
	if uint64(len(rest)) < uint64(n) {
		return PongReducePayload{}, ErrShortRead
	}
	p.Value = append([]byte(nil), rest[:n]...)
	return p, nil
}
