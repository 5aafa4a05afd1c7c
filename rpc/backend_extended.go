package rpc

import (
	"errors"
	"math/big"

	"github.com/guillotine/guillotine/core/state"
	"github.com/guillotine/guillotine/core/types"
	"github.com/guillotine/guillotine/core/vm"
	"github.com/guillotine/guillotine/trie"
)

// ErrBackendBlockNotFound is returned when a requested block header cannot
// be resolved from the backend.
var ErrBackendBlockNotFound = errors.New("backend: block not found")

// FeeHistoryEntry holds fee data for a single block in an eth_feeHistory response.
type FeeHistoryEntry struct {
	BaseFee      *big.Int
	GasUsedRatio float64
}

// FeeHistoryCollector aggregates fee history from chain headers for the
// eth_feeHistory RPC method.
type FeeHistoryCollector struct {
	backend Backend
}

// NewFeeHistoryCollector creates a new fee history collector.
func NewFeeHistoryCollector(backend Backend) *FeeHistoryCollector {
	return &FeeHistoryCollector{backend: backend}
}

// Collect returns fee history entries for blockCount blocks ending at
// newestBlock, along with the oldest block number covered.
func (fhc *FeeHistoryCollector) Collect(blockCount uint64, newestBlock BlockNumber) ([]FeeHistoryEntry, uint64, error) {
	newestHeader := fhc.backend.HeaderByNumber(newestBlock)
	if newestHeader == nil {
		return nil, 0, ErrBackendBlockNotFound
	}
	newestNum := newestHeader.Number.Uint64()

	oldest := uint64(0)
	if newestNum+1 >= blockCount {
		oldest = newestNum + 1 - blockCount
	}

	entries := make([]FeeHistoryEntry, 0, blockCount)
	for i := oldest; i <= newestNum; i++ {
		header := fhc.backend.HeaderByNumber(BlockNumber(i))
		entry := FeeHistoryEntry{BaseFee: new(big.Int)}
		if header != nil {
			if header.BaseFee != nil {
				entry.BaseFee.Set(header.BaseFee)
			}
			if header.GasLimit > 0 {
				entry.GasUsedRatio = float64(header.GasUsed) / float64(header.GasLimit)
			}
		}
		entries = append(entries, entry)
	}
	return entries, oldest, nil
}

// Ensure Backend interface usage is preserved.
var _ Backend = (*backendTypeCheck)(nil)

// backendTypeCheck is only used at compile time to verify the Backend interface
// is satisfied (it will never be instantiated).
type backendTypeCheck struct{}

func (b *backendTypeCheck) HeaderByNumber(_ BlockNumber) *types.Header { return nil }
func (b *backendTypeCheck) HeaderByHash(_ types.Hash) *types.Header    { return nil }
func (b *backendTypeCheck) BlockByNumber(_ BlockNumber) *types.Block   { return nil }
func (b *backendTypeCheck) BlockByHash(_ types.Hash) *types.Block      { return nil }
func (b *backendTypeCheck) CurrentHeader() *types.Header               { return nil }
func (b *backendTypeCheck) ChainID() *big.Int                          { return nil }
func (b *backendTypeCheck) StateAt(_ types.Hash) (state.StateDB, error) { return nil, nil }
func (b *backendTypeCheck) SendTransaction(_ *types.Transaction) error { return nil }
func (b *backendTypeCheck) GetTransaction(_ types.Hash) (*types.Transaction, uint64, uint64) {
	return nil, 0, 0
}
func (b *backendTypeCheck) SuggestGasPrice() *big.Int                  { return nil }
func (b *backendTypeCheck) GetReceipts(_ types.Hash) []*types.Receipt  { return nil }
func (b *backendTypeCheck) GetLogs(_ types.Hash) []*types.Log          { return nil }
func (b *backendTypeCheck) GetBlockReceipts(_ uint64) []*types.Receipt { return nil }
func (b *backendTypeCheck) GetProof(_ types.Address, _ []types.Hash, _ BlockNumber) (*trie.AccountProof, error) {
	return nil, nil
}
func (b *backendTypeCheck) EVMCall(_ types.Address, _ *types.Address, _ []byte, _ uint64, _ *big.Int, _ BlockNumber) ([]byte, uint64, error) {
	return nil, 0, nil
}
func (b *backendTypeCheck) TraceTransaction(_ types.Hash) (*vm.StructLogTracer, error) {
	return nil, nil
}
func (b *backendTypeCheck) HistoryOldestBlock() uint64 { return 0 }
