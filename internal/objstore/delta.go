package objstore

import (
	"fmt"
)

// copyInsertInstruction is one decoded delta op: if insert is true,
// data holds literal bytes to append; otherwise, offset/length name a
// byte range of the base object to copy.
type copyInsertInstruction struct {
	insert bool
	data   []byte
	offset int
	length int
}

// decodeDeltaInstructions parses the git-style delta encoding: a
// varint source size, a varint target size, then a stream of
// copy/insert opcodes. The two size varints are returned for the
// caller to sanity-check against the actual base/target lengths.
func decodeDeltaInstructions(delta []byte) (sourceSize, targetSize int, ops []copyInsertInstruction, err error) {
	sourceSize, delta, err = decodeDeltaSize(delta)
	if err != nil {
		return 0, 0, nil, err
	}
	targetSize, delta, err = decodeDeltaSize(delta)
	if err != nil {
		return 0, 0, nil, err
	}
	for len(delta) > 0 {
		b := delta[0]
		delta = delta[1:]
		if b&0x80 != 0 {
			need := 0
			for bit := byte(0x01); bit <= 0x40; bit <<= 1 {
				if b&bit != 0 {
					need++
				}
			}
			if len(delta) < need {
				return 0, 0, nil, fmt.Errorf("objstore: delta copy opcode truncated")
			}
			var offset, length uint32
			if b&0x01 != 0 {
				offset |= uint32(delta[0])
				delta = delta[1:]
			}
			if b&0x02 != 0 {
				offset |= uint32(delta[0]) << 8
				delta = delta[1:]
			}
			if b&0x04 != 0 {
				offset |= uint32(delta[0]) << 16
				delta = delta[1:]
			}
			if b&0x08 != 0 {
				offset |= uint32(delta[0]) << 24
				delta = delta[1:]
			}
			if b&0x10 != 0 {
				length |= uint32(delta[0])
				delta = delta[1:]
			}
			if b&0x20 != 0 {
				length |= uint32(delta[0]) << 8
				delta = delta[1:]
			}
			if b&0x40 != 0 {
				length |= uint32(delta[0]) << 16
				delta = delta[1:]
			}
			if length == 0 {
				length = 0x10000
			}
			ops = append(ops, copyInsertInstruction{offset: int(offset), length: int(length)})
		} else if b != 0 {
			n := int(b)
			if len(delta) < n {
				return 0, 0, nil, fmt.Errorf("objstore: delta insert truncated")
			}
			ops = append(ops, copyInsertInstruction{insert: true, data: delta[:n]})
			delta = delta[n:]
		} else {
			return 0, 0, nil, fmt.Errorf("objstore: reserved delta opcode 0")
		}
	}
	return sourceSize, targetSize, ops, nil
}

// decodeDeltaSize reads the little-endian, 7-bits-per-byte varint used
// for the source/target size header fields.
func decodeDeltaSize(b []byte) (int, []byte, error) {
	var size uint64
	var shift uint
	for i := 0; i < len(b); i++ {
		c := b[i]
		size |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return int(size), b[i+1:], nil
		}
		shift += 7
	}
	return 0, nil, fmt.Errorf("objstore: truncated delta size varint")
}

// applyDelta reconstructs a target object from a base object and an
// encoded delta, which it decodes itself. It is a pure function: base
// lookup and loop detection are the caller's responsibility.
func applyDelta(base []byte, delta []byte) ([]byte, error) {
	sourceSize, targetSize, ops, err := decodeDeltaInstructions(delta)
	if err != nil {
		return nil, err
	}
	if sourceSize != len(base) {
		return nil, fmt.Errorf("objstore: delta source size %d does not match base length %d", sourceSize, len(base))
	}
	out := make([]byte, 0, targetSize)
	for _, op := range ops {
		if op.insert {
			out = append(out, op.data...)
			continue
		}
		if op.offset < 0 || op.offset+op.length > len(base) {
			return nil, fmt.Errorf("objstore: delta copy [%d,%d) out of bounds for base of length %d", op.offset, op.offset+op.length, len(base))
		}
		out = append(out, base[op.offset:op.offset+op.length]...)
	}
	if len(out) != targetSize {
		return nil, fmt.Errorf("objstore: delta produced %d bytes, expected %d", len(out), targetSize)
	}
	return out, nil
}
