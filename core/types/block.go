package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BlockType identifies the request class a block settles on chain.
type BlockType uint8

const (
	BlockTypeSettlement BlockType = iota // mixed request batch
	BlockTypeDeposit
	BlockTypeOnchainWithdrawal
	BlockTypeOffchainWithdrawal
	BlockTypeOrderCancellation
	BlockTypeInternalTransfer
)

// Block is a committed batch of processed requests together with the Merkle
// roots the batch was committed against.
//
// TotalNumRequestsProcessed is the running sum of NumRequestsProcessed over
// the ordered block sequence and is therefore monotonically non-decreasing.
type Block struct {
	BlockIdx     uint64    `json:"blockIdx"`
	BlockType    BlockType `json:"blockType"`
	BlockSize    uint16    `json:"blockSize"`
	BlockVersion uint8     `json:"blockVersion"`

	Data         []byte `json:"data"`
	OffchainData []byte `json:"offchainData"`

	Operator common.Address `json:"operator"`
	Origin   common.Address `json:"origin"`
	BlockFee *big.Int       `json:"blockFee"`

	MerkleRoot      common.Hash `json:"merkleRoot"`
	MerkleAssetRoot common.Hash `json:"merkleAssetRoot"`

	Timestamp                 uint64 `json:"timestamp"`
	NumRequestsProcessed      uint64 `json:"numRequestsProcessed"`
	TotalNumRequestsProcessed uint64 `json:"totalNumRequestsProcessed"`

	TransactionHash common.Hash `json:"transactionHash"`
}

// Token is a registered token. A disabled token forbids new deposits; the
// enforcement happens in the block-building layer, the flag is recorded here
// as state.
type Token struct {
	Exchange common.Address `json:"exchange"`
	TokenID  uint32         `json:"tokenId"`
	Address  common.Address `json:"address"`
	Enabled  bool           `json:"enabled"`
}

// WithdrawFromMerkleTreeData carries everything needed to withdraw a balance
// directly against the last committed on-chain root. The proofs are ordered
// bottom-up sequences of hex-encoded sibling hashes produced by the Merkle
// collaborator.
type WithdrawFromMerkleTreeData struct {
	Owner      common.Address `json:"owner"`
	Token      common.Address `json:"token"`
	PublicKeyX string         `json:"publicKeyX"`
	PublicKeyY string         `json:"publicKeyY"`
	Nonce      uint64         `json:"nonce"`
	Balance    *big.Int       `json:"balance"`

	AccountMerkleProof []string `json:"accountMerkleProof"`
	BalanceMerkleProof []string `json:"balanceMerkleProof"`
}
