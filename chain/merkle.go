package chain

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// hashPair double-SHA256es the concatenation of a and b, the node hash
// used at every level of a Bitcoin merkle tree.
func hashPair(a, b chainhash.Hash) chainhash.Hash {
	buf := make([]byte, 0, 64)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	first := sha256.Sum256(buf)
	second := sha256.Sum256(first[:])
	return chainhash.Hash(second)
}

// MerkleProof computes the classic Bitcoin merkle branch for target
// within txids: the sibling hash at each level needed to recompute the
// root, and target's position (used to know, at each level, whether it
// combines as the left or right operand). ok is false if target isn't
// in txids.
func MerkleProof(txids []Txid, target Txid) (branch []Txid, pos int, ok bool) {
	index := -1
	for i, t := range txids {
		if t == target {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, 0, false
	}

	level := make([]chainhash.Hash, len(txids))
	copy(level, txids)
	pos = index

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		siblingIdx := pos ^ 1
		branch = append(branch, level[siblingIdx])

		next := make([]chainhash.Hash, len(level)/2)
		for i := 0; i < len(next); i++ {
			next[i] = hashPair(level[2*i], level[2*i+1])
		}
		level = next
		pos /= 2
	}
	return branch, index, true
}

// treeWidth returns the number of nodes at a given height of a merkle
// tree over n leaves, height 0 being the leaves themselves.
func treeWidth(n int, height uint) int {
	return (n + (1 << height) - 1) >> height
}

// merkleHeight returns the number of levels above the leaves in a
// merkle tree over n leaves.
func merkleHeight(n int) uint {
	h := uint(0)
	for treeWidth(n, h) > 1 {
		h++
	}
	return h
}

// partialMerkleBuilder implements BIP37's TraverseAndBuild: it walks
// the merkle tree depth-first, recording a flag bit per visited node
// (1 = "this branch matters, recurse/keep"; 0 = "prune, emit hash and
// stop") and the hashes needed to reconstruct the tree around the
// matched leaves.
type partialMerkleBuilder struct {
	txids   []chainhash.Hash
	matches []bool
	height  uint
	hashes  []chainhash.Hash
	flags   []bool
}

func (b *partialMerkleBuilder) calcHash(height uint, pos int) chainhash.Hash {
	if height == 0 {
		return b.txids[pos]
	}
	width := treeWidth(len(b.txids), height-1)
	left := b.calcHash(height-1, pos*2)
	if pos*2+1 < width {
		right := b.calcHash(height-1, pos*2+1)
		return hashPair(left, right)
	}
	return hashPair(left, left)
}

func (b *partialMerkleBuilder) traverseAndBuild(height uint, pos int) {
	anyMatch := false
	width := treeWidth(len(b.txids), height)
	from := pos * (1 << height)
	to := from + (1 << height)
	if to > len(b.txids) {
		to = len(b.txids)
	}
	_ = width
	for i := from; i < to; i++ {
		if b.matches[i] {
			anyMatch = true
			break
		}
	}
	b.flags = append(b.flags, anyMatch)

	if !anyMatch || height == 0 {
		b.hashes = append(b.hashes, b.calcHash(height, pos))
		return
	}

	leftWidth := treeWidth(len(b.txids), height-1)
	b.traverseAndBuild(height-1, pos*2)
	if pos*2+1 < leftWidth {
		b.traverseAndBuild(height-1, pos*2+1)
	}
}

// BuildMerkleBlockProof constructs a BIP37 partial merkle tree proving
// target's inclusion among txids: the hash list and flag bits a peer
// needs to verify the match without the full block. ok is false if
// target isn't in txids.
func BuildMerkleBlockProof(txids []Txid, target Txid) (hashes []chainhash.Hash, flags []byte, ok bool) {
	matches := make([]bool, len(txids))
	found := false
	for i, t := range txids {
		if t == target {
			matches[i] = true
			found = true
		}
	}
	if !found {
		return nil, nil, false
	}

	b := &partialMerkleBuilder{
		txids:   txids,
		matches: matches,
		height:  merkleHeight(len(txids)),
	}
	b.traverseAndBuild(b.height, 0)

	flagBytes := make([]byte, (len(b.flags)+7)/8)
	for i, f := range b.flags {
		if f {
			flagBytes[i/8] |= 1 << uint(i%8)
		}
	}
	return b.hashes, flagBytes, true
}

// SerializeMerkleBlock encodes a BIP37 merkleblock message: the block
// header, total transaction count, the partial-tree hash list and flag
// bits. Built by hand from wire.BlockHeader.Serialize and
// wire.WriteVarInt rather than wire.MsgMerkleBlock.BtcEncode, both of
// which are long-stable exported primitives.
func SerializeMerkleBlock(header wire.BlockHeader, txCount uint32, hashes []chainhash.Hash, flags []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := header.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("chain: serialize merkleblock header: %w", err)
	}
	if err := writeUint32LE(&buf, txCount); err != nil {
		return nil, err
	}
	if err := wire.WriteVarInt(&buf, wire.ProtocolVersion, uint64(len(hashes))); err != nil {
		return nil, fmt.Errorf("chain: write merkleblock hash count: %w", err)
	}
	for _, h := range hashes {
		if _, err := buf.Write(h[:]); err != nil {
			return nil, fmt.Errorf("chain: write merkleblock hash: %w", err)
		}
	}
	if err := wire.WriteVarInt(&buf, wire.ProtocolVersion, uint64(len(flags))); err != nil {
		return nil, fmt.Errorf("chain: write merkleblock flag count: %w", err)
	}
	if _, err := buf.Write(flags); err != nil {
		return nil, fmt.Errorf("chain: write merkleblock flags: %w", err)
	}
	return buf.Bytes(), nil
}

func writeUint32LE(buf *bytes.Buffer, v uint32) error {
	b := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	_, err := buf.Write(b)
	if err != nil {
		return fmt.Errorf("chain: write uint32: %w", err)
	}
	return nil
}
