package dht

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Frame is a fully decoded inbound message: the common header plus whichever
// per-command payload applies (§4.1). At most one of the typed payload
// fields is non-nil, selected by Header.Command; PING and PONG set none.
type Frame struct {
	Header        Header
	Store         *StorePayload
	PongStore     *PongStorePayload
	FindNode      *Identifier
	PongFindNode  *PongFindNodePayload
	FindValue     *Identifier
	PongFindValue *PongFindValuePayload
	Reduce        *ReducePayload
	PongReduce    *PongReducePayload
}

func readExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	return buf, nil
}

func readRemote(r io.Reader) (Remote, error) {
	prefix, err := readExact(r, 3)
	if err != nil {
		return Remote{}, err
	}
	ipLen := int(prefix[0])
	port := binary.BigEndian.Uint16(prefix[1:3])
	if ipLen <= 0 || ipLen > maxIPLen {
		return Remote{}, ErrBadIPLength
	}
	ipBytes, err := readExact(r, ipLen)
	if err != nil {
		return Remote{}, err
	}
	return Remote{Host: net.IP(ipBytes), Port: port}, nil
}

func readNode(r io.Reader) (Node, error) {
	idBytes, err := readExact(r, IDLen)
	if err != nil {
		return Node{}, err
	}
	remote, err := readRemote(r)
	if err != nil {
		return Node{}, err
	}
	var n Node
	copy(n.ID[:], idBytes)
	n.Remote = remote
	return n, nil
}

func readIdentifier(r io.Reader) (Identifier, error) {
	b, err := readExact(r, IDLen)
	if err != nil {
		return Identifier{}, err
	}
	var id Identifier
	copy(id[:], b)
	return id, nil
}

func readLengthPrefixedValue(r io.Reader) ([]byte, error) {
	lenBytes, err := readExact(r, 4)
	if err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBytes)
	if n == 0 {
		return []byte{}, nil
	}
	return readExact(r, int(n))
}

// ReadFrame reads exactly one frame from r using successive read-exactly
// calls, mirroring the reference implementation's TCPRPC.read_command. A
// decode error here is fatal to the connection that produced it, never to
// the node as a whole (§7).
func ReadFrame(r io.Reader) (Frame, error) {
	cmdByte, err := readExact(r, 1)
	if err != nil {
		return Frame{}, err
	}
	cmd := Command(cmdByte[0])

	echo, err := readIdentifier(r)
	if err != nil {
		return Frame{}, err
	}
	senderID, err := readIdentifier(r)
	if err != nil {
		return Frame{}, err
	}
	senderRemote, err := readRemote(r)
	if err != nil {
		return Frame{}, err
	}
	header := Header{Command: cmd, Echo: echo, SenderID: senderID, SenderRemote: senderRemote}

	switch cmd {
	case CmdPing, CmdPong:
		return Frame{Header: header}, nil

	case CmdStore:
		key, err := readIdentifier(r)
		if err != nil {
			return Frame{}, err
		}
		value, err := readLengthPrefixedValue(r)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Header: header, Store: &StorePayload{Key: key, Value: value}}, nil

	case CmdPongStore:
		key, err := readIdentifier(r)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Header: header, PongStore: &PongStorePayload{Key: key}}, nil

	case CmdFindNode:
		target, err := readIdentifier(r)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Header: header, FindNode: &target}, nil

	case CmdPongFindNode:
		target, err := readIdentifier(r)
		if err != nil {
			return Frame{}, err
		}
		countByte, err := readExact(r, 1)
		if err != nil {
			return Frame{}, err
		}
		count := int(countByte[0])
		nodes := make([]Node, 0, count)
		for i := 0; i < count; i++ {
			n, err := readNode(r)
			if err != nil {
				return Frame{}, err
			}
			nodes = append(nodes, n)
		}
		return Frame{Header: header, PongFindNode: &PongFindNodePayload{Target: target, Nodes: nodes}}, nil

	case CmdFindValue:
		key, err := readIdentifier(r)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Header: header, FindValue: &key}, nil

	case CmdPongFindValue:
		key, err := readIdentifier(r)
		if err != nil {
			return Frame{}, err
		}
		value, err := readLengthPrefixedValue(r)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Header: header, PongFindValue: &PongFindValuePayload{Key: key, Value: value}}, nil

	case CmdReduce:
		keyStart, err := readIdentifier(r)
		if err != nil {
			return Frame{}, err
		}
		keyEnd, err := readIdentifier(r)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Header: header, Reduce: &ReducePayload{KeyStart: keyStart, KeyEnd: keyEnd}}, nil

	case CmdPongReduce:
		keyStart, err := readIdentifier(r)
		if err != nil {
			return Frame{}, err
		}
		keyEnd, err := readIdentifier(r)
		if err != nil {
			return Frame{}, err
		}
		value, err := readLengthPrefixedValue(r)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Header: header, PongReduce: &PongReducePayload{KeyStart: keyStart, KeyEnd: keyEnd, Value: value}}, nil

	default:
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownCommand, cmd)
	}
}
