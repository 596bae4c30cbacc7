// Package stub provides in-memory Solana clients for tests.
package stub

import (
	"context"
	"sync"

	"swap-authority/internal/solana"
)

// RPCClient implements solana.RPCClient from in-memory maps. Missing
// accounts and transactions yield nil, nil like the real node.
type RPCClient struct {
	mu           sync.Mutex
	Accounts     map[string]*solana.AccountInfo
	Transactions map[string]*solana.Transaction
	// Signatures per address, newest first.
	Signatures map[string][]solana.SignatureInfo
	Slot       int64
	// Err, when set, is returned by every call.
	Err error
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts:     make(map[string]*solana.AccountInfo),
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
	}
}

// SetAccount stores account data owned by owner.
func (c *RPCClient) SetAccount(pubkey, owner string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = &solana.AccountInfo{Owner: owner, Data: data, Lamports: 1}
}

// AddTransaction stores tx and records its signature as the newest one for
// each of the given addresses.
func (c *RPCClient) AddTransaction(tx *solana.Transaction, addresses ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Transactions[tx.Signature] = tx
	bt := tx.BlockTime
	for _, addr := range addresses {
		info := solana.SignatureInfo{Signature: tx.Signature, Slot: tx.Slot, BlockTime: &bt, Err: tx.Err}
		c.Signatures[addr] = append([]solana.SignatureInfo{info}, c.Signatures[addr]...)
	}
	if tx.Slot > c.Slot {
		c.Slot = tx.Slot
	}
}

// GetAccountInfo returns the stored account.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Accounts[pubkey], nil
}

// GetTransaction returns the stored transaction.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Transactions[signature], nil
}

// GetSignaturesForAddress pages the stored signatures the way the node does:
// strictly older than Before, strictly newer than Until, at most Limit.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}

	all := c.Signatures[address]
	start := 0
	if opts != nil && opts.Before != "" {
		start = len(all)
		for i, s := range all {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}

	var out []solana.SignatureInfo
	for _, s := range all[start:] {
		if opts != nil && opts.Until != "" && s.Signature == opts.Until {
			break
		}
		out = append(out, s)
		if opts != nil && opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// GetSlot returns the highest slot added so far.
func (c *RPCClient) GetSlot(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return 0, c.Err
	}
	return c.Slot, nil
}
