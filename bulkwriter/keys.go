package bulkwriter

import (
	"encoding/binary"
	"fmt"
)

// Key layout inside a bulk file:
//
//	escape(token) 0x00 0x01 escape(rowKey) 0x00 0x01 column
//
// escape rewrites 0x00 as 0x00 0xFF, so a component terminator (0x00 0x01) sorts
// below any continuation of the component. Bytewise order of encoded keys is the
// (token, row key, column) tuple order.
const (
	escapeByte    = 0x00
	escapedZero   = 0xFF
	terminatorEnd = 0x01
)

// timestampLen is the width of the cell timestamp prefix on every value
const timestampLen = 8

func appendEscaped(dst, b []byte) []byte {
	for _, c := range b {
		if c == escapeByte {
			dst = append(dst, escapeByte, escapedZero)
		} else {
			dst = append(dst, c)
		}
	}
	return append(dst, escapeByte, terminatorEnd)
}

// EncodeKey builds the sortable key for one cell
func EncodeKey(token, rowKey, column []byte) []byte {
	key := make([]byte, 0, len(token)+len(rowKey)+len(column)+8)
	key = appendEscaped(key, token)
	key = appendEscaped(key, rowKey)
	return append(key, column...)
}

// readEscaped decodes one escaped component and returns the remainder
func readEscaped(b []byte) (component []byte, rest []byte, err error) {
	component = make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != escapeByte {
			component = append(component, b[i])
			continue
		}
		if i+1 >= len(b) {
			return nil, nil, fmt.Errorf("truncated escape at offset %d", i)
		}
		switch b[i+1] {
		case escapedZero:
			component = append(component, escapeByte)
			i++
		case terminatorEnd:
			return component, b[i+2:], nil
		default:
			return nil, nil, fmt.Errorf("invalid escape 0x%02x at offset %d", b[i+1], i)
		}
	}
	return nil, nil, fmt.Errorf("missing component terminator")
}

// DecodeKey splits an encoded key back into token, row key and column
func DecodeKey(key []byte) (token, rowKey, column []byte, err error) {
	token, rest, err := readEscaped(key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("token: %w", err)
	}
	rowKey, rest, err = readEscaped(rest)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("row key: %w", err)
	}
	column = make([]byte, len(rest))
	copy(column, rest)
	return token, rowKey, column, nil
}

// EncodeValue prefixes the value with its big-endian microsecond timestamp
func EncodeValue(timestamp int64, value []byte) []byte {
	out := make([]byte, timestampLen+len(value))
	binary.BigEndian.PutUint64(out, uint64(timestamp))
	copy(out[timestampLen:], value)
	return out
}

// DecodeValue splits a stored value into timestamp and payload
func DecodeValue(raw []byte) (timestamp int64, value []byte, err error) {
	if len(raw) < timestampLen {
		return 0, nil, fmt.Errorf("value too short: %d bytes", len(raw))
	}
	value = make([]byte, len(raw)-timestampLen)
	copy(value, raw[timestampLen:])
	return int64(binary.BigEndian.Uint64(raw)), value, nil
}
