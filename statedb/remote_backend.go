package statedb

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/colorfulnotion/evmhost/common"
	"github.com/colorfulnotion/evmhost/log"
	"github.com/colorfulnotion/evmhost/vmerrors"
	"github.com/ethereum/go-ethereum"
	ethereumCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
)

// ChainReader is the subset of *ethclient.Client the remote backend uses.
type ChainReader interface {
	BalanceAt(ctx context.Context, account ethereumCommon.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account ethereumCommon.Address, blockNumber *big.Int) (uint64, error)
	CodeAt(ctx context.Context, account ethereumCommon.Address, blockNumber *big.Int) ([]byte, error)
	StorageAt(ctx context.Context, account ethereumCommon.Address, key ethereumCommon.Hash, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

type storageKey struct {
	addr ethereumCommon.Address
	key  ethereumCommon.Hash
}

// RemoteBackend forks state from a JSON-RPC node at a pinned block. Every
// answer is cached, so a transaction sees a consistent view. It is read-only.
type RemoteBackend struct {
	reader ChainReader
	block  *big.Int
	close  func()

	mu          sync.Mutex
	accounts    map[ethereumCommon.Address]*Account
	storage     map[storageKey]ethereumCommon.Hash
	codes       map[ethereumCommon.Hash][]byte
	blockHashes map[uint64]blockHashEntry
	requests    int
}

func NewRemoteBackend(reader ChainReader, block *big.Int) (*RemoteBackend, error) {
	if block == nil {
		return nil, vmerrors.ErrBlockNotPinned
	}
	return &RemoteBackend{
		reader:      reader,
		block:       new(big.Int).Set(block),
		accounts:    make(map[ethereumCommon.Address]*Account),
		storage:     make(map[storageKey]ethereumCommon.Hash),
		codes:       make(map[ethereumCommon.Hash][]byte),
		blockHashes: make(map[uint64]blockHashEntry),
	}, nil
}

// DialRemote connects to url and pins block, or the latest block when block
// is zero.
func DialRemote(ctx context.Context, url string, block uint64) (*RemoteBackend, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %v", url, vmerrors.ErrBackendUnavailable, err)
	}
	if block == 0 {
		block, err = client.BlockNumber(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("latest block: %w: %v", vmerrors.ErrBackendUnavailable, err)
		}
	}
	rb, err := NewRemoteBackend(client, new(big.Int).SetUint64(block))
	if err != nil {
		client.Close()
		return nil, err
	}
	rb.close = client.Close
	log.Info(log.RemoteMonitoring, "forked remote state", "url", url, "block", block)
	return rb, nil
}

func (r *RemoteBackend) Close() {
	if r.close != nil {
		r.close()
	}
}

// Block returns the pinned block number.
func (r *RemoteBackend) Block() uint64 {
	return r.block.Uint64()
}

// Requests counts the RPC round trips made so far.
func (r *RemoteBackend) Requests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

func (r *RemoteBackend) unavailable(what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("remote %s: %w: %v", what, vmerrors.ErrCancelled, err)
	}
	log.Warn(log.RemoteMonitoring, "remote request failed", "what", what, "err", err)
	return fmt.Errorf("remote %s: %w: %v", what, vmerrors.ErrBackendUnavailable, err)
}

// Account returns nil for addresses with no nonce, balance or code.
func (r *RemoteBackend) Account(ctx context.Context, addr ethereumCommon.Address) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if acct, ok := r.accounts[addr]; ok {
		return acct.Copy(), nil
	}
	r.requests += 3
	balance, err := r.reader.BalanceAt(ctx, addr, r.block)
	if err != nil {
		return nil, r.unavailable("balance "+addr.Hex(), err)
	}
	nonce, err := r.reader.NonceAt(ctx, addr, r.block)
	if err != nil {
		return nil, r.unavailable("nonce "+addr.Hex(), err)
	}
	code, err := r.reader.CodeAt(ctx, addr, r.block)
	if err != nil {
		return nil, r.unavailable("code "+addr.Hex(), err)
	}
	bal, overflow := uint256.FromBig(balance)
	if overflow {
		return nil, fmt.Errorf("remote balance %s: %w", addr, vmerrors.ErrCorruptRecord)
	}
	acct := &Account{Nonce: nonce, Balance: bal, CodeHash: common.Keccak256(code)}
	r.codes[acct.CodeHash] = code
	if acct.Empty() {
		acct = nil
	}
	r.accounts[addr] = acct
	log.Trace(log.RemoteMonitoring, "fetched account", "addr", addr, "nonce", nonce, "balance", bal, "codeLen", len(code))
	return acct.Copy(), nil
}

func (r *RemoteBackend) Storage(ctx context.Context, addr ethereumCommon.Address, key ethereumCommon.Hash) (ethereumCommon.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sk := storageKey{addr, key}
	if v, ok := r.storage[sk]; ok {
		return v, nil
	}
	r.requests++
	raw, err := r.reader.StorageAt(ctx, addr, key, r.block)
	if err != nil {
		return ethereumCommon.Hash{}, r.unavailable("storage "+addr.Hex(), err)
	}
	if len(raw) > ethereumCommon.HashLength {
		return ethereumCommon.Hash{}, fmt.Errorf("remote storage %s/%s: %d bytes: %w", addr, key, len(raw), vmerrors.ErrCorruptRecord)
	}
	v := ethereumCommon.BytesToHash(raw)
	r.storage[sk] = v
	return v, nil
}

// Code serves code fetched alongside its account.
func (r *RemoteBackend) Code(_ context.Context, codeHash ethereumCommon.Hash) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.codes[codeHash]
	if !ok {
		return nil, fmt.Errorf("remote code %s: not fetched: %w", codeHash, vmerrors.ErrBackendUnavailable)
	}
	return code, nil
}

// BlockHash is unavailable for blocks after the pinned one.
func (r *RemoteBackend) BlockHash(ctx context.Context, number uint64) (ethereumCommon.Hash, bool, error) {
	if number > r.block.Uint64() {
		return ethereumCommon.Hash{}, false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.blockHashes[number]; ok {
		return e.hash, e.available, nil
	}
	r.requests++
	header, err := r.reader.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if errors.Is(err, ethereum.NotFound) {
		r.blockHashes[number] = blockHashEntry{}
		return ethereumCommon.Hash{}, false, nil
	}
	if err != nil {
		return ethereumCommon.Hash{}, false, r.unavailable(fmt.Sprintf("header %d", number), err)
	}
	e := blockHashEntry{hash: header.Hash(), available: true}
	r.blockHashes[number] = e
	return e.hash, true, nil
}

func (r *RemoteBackend) WriteAccount(ethereumCommon.Address, *Account) error {
	return vmerrors.ErrReadOnlyBackend
}

func (r *RemoteBackend) WriteStorage(ethereumCommon.Address, ethereumCommon.Hash, ethereumCommon.Hash) error {
	return vmerrors.ErrReadOnlyBackend
}

func (r *RemoteBackend) WriteCode(ethereumCommon.Hash, []byte) error {
	return vmerrors.ErrReadOnlyBackend
}

func (r *RemoteBackend) DeleteAccount(ethereumCommon.Address) error {
	return vmerrors.ErrReadOnlyBackend
}
