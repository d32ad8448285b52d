// Package partition maps row keys to placement tokens. Rows are written to bulk
// files in ascending token order, so the strategy must match the target cluster.
package partition

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Partitioner derives a token from a row key. Tokens compare with bytes.Compare.
type Partitioner interface {
	Name() string
	Token(rowKey []byte) []byte
}

// Compare orders two (token, row key) pairs: token first, raw row key bytes on ties
func Compare(tokenA, keyA, tokenB, keyB []byte) int {
	if c := bytes.Compare(tokenA, tokenB); c != 0 {
		return c
	}
	return bytes.Compare(keyA, keyB)
}

// RandomPartitioner hashes row keys with MD5 and reads the digest as a signed
// 128-bit integer, taking its absolute value. Tokens are 16 bytes big-endian.
type RandomPartitioner struct{}

// RandomTokenLen is the width of a RandomPartitioner token
const RandomTokenLen = 16

func (RandomPartitioner) Name() string { return "random" }

func (RandomPartitioner) Token(rowKey []byte) []byte {
	sum := md5.Sum(rowKey)

	v := new(big.Int).SetBytes(sum[:])
	if sum[0]&0x80 != 0 {
		// Two's complement: value - 2^128, then abs
		v.Sub(new(big.Int).Lsh(big.NewInt(1), 128), v)
	}

	token := make([]byte, RandomTokenLen)
	return v.FillBytes(token)
}

// ByteOrderedPartitioner places rows by their raw key bytes
type ByteOrderedPartitioner struct{}

func (ByteOrderedPartitioner) Name() string { return "byteordered" }

func (ByteOrderedPartitioner) Token(rowKey []byte) []byte {
	token := make([]byte, len(rowKey))
	copy(token, rowKey)
	return token
}

// XXHashPartitioner places rows by the 64-bit xxhash of the key, 8 bytes big-endian
type XXHashPartitioner struct{}

func (XXHashPartitioner) Name() string { return "xxhash" }

func (XXHashPartitioner) Token(rowKey []byte) []byte {
	token := make([]byte, 8)
	binary.BigEndian.PutUint64(token, xxhash.Sum64(rowKey))
	return token
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Partitioner{}
)

func init() {
	Register(RandomPartitioner{})
	Register(ByteOrderedPartitioner{})
	Register(XXHashPartitioner{})
}

// Register makes a partitioner selectable by name
func Register(p Partitioner) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.Name()] = p
}

// Get returns the partitioner registered under name
func Get(name string) (Partitioner, error) {
	registryMu.RLock()
	p, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown partitioner: %s", name)
	}
	return p, nil
}

// Names lists registered partitioners, sorted
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
