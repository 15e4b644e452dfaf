package common

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	ethereumCommon "github.com/ethereum/go-ethereum/common"
)

// EncodeUint64 encodes a uint64 in BigEndian order so keys sort numerically.
func EncodeUint64(num uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, num)
	return buf
}

func DecodeUint64(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid byte slice length %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func Bytes2Hex(d []byte) string {
	return "0x" + ethereumCommon.Bytes2Hex(d)
}

func FromHex(s string) []byte {
	return ethereumCommon.FromHex(strings.TrimSpace(s))
}

// ReadHexFile reads a file holding hex text (with or without 0x).
func ReadHexFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromHex(string(data)), nil
}

// TruncateHex shortens long hex payloads for log output.
func TruncateHex(d []byte, max int) string {
	s := Bytes2Hex(d)
	if max <= 0 || len(s) <= max+2 {
		return s
	}
	return fmt.Sprintf("%s..(%d bytes)", s[:max+2], len(d))
}
