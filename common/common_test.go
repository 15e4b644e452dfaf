package common

import (
	"testing"

	ethereumCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
)

func TestGetEVMDevAccount(t *testing.T) {
	for i := 0; i < 10; i++ {
		addr, privKeyHex := GetEVMDevAccount(i)
		if addr == (ethereumCommon.Address{}) {
			t.Errorf("Account %d: got empty address", i)
		}
		privKey, err := crypto.HexToECDSA(privKeyHex)
		if err != nil {
			t.Errorf("Account %d: failed to parse private key: %v", i, err)
			continue
		}
		derivedAddr := crypto.PubkeyToAddress(privKey.PublicKey)
		if derivedAddr != addr {
			t.Errorf("Account %d: address mismatch: got %s, derived %s", i, addr.Hex(), derivedAddr.Hex())
		}
	}
}

func TestKeccak256(t *testing.T) {
	assert.Equal(t, crypto.Keccak256Hash(nil), EmptyCodeHash)
	assert.Equal(t, crypto.Keccak256Hash([]byte("ab")), Keccak256([]byte("a"), []byte("b")))
}

func TestEncodeUint64(t *testing.T) {
	v, err := DecodeUint64(EncodeUint64(0x0102030405060708))
	assert.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), v)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 1}, EncodeUint64(1))

	_, err = DecodeUint64([]byte{1})
	assert.Error(t, err)
}

func TestTruncateHex(t *testing.T) {
	assert.Equal(t, "0x0102", TruncateHex([]byte{1, 2}, 8))
	assert.Equal(t, "0x0102..(4 bytes)", TruncateHex([]byte{1, 2, 3, 4}, 4))
	assert.Equal(t, "0x6001", Bytes2Hex(FromHex(" 0x6001\n")))
}
