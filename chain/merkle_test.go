package chain

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
)

func txidByte(b byte) Txid {
	var h Txid
	h[0] = b
	return h
}

func recomputeRoot(txid Txid, branch []Txid, pos int) Txid {
	root := txid
	for _, sibling := range branch {
		if pos%2 == 0 {
			root = hashPair(root, sibling)
		} else {
			root = hashPair(sibling, root)
		}
		pos /= 2
	}
	return root
}

func TestMerkleProofRecomputesRootForEveryPosition(t *testing.T) {
	txids := []Txid{txidByte(1), txidByte(2), txidByte(3), txidByte(4), txidByte(5)}

	level := make([]Txid, len(txids))
	copy(level, txids)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Txid, len(level)/2)
		for i := range next {
			next[i] = hashPair(level[2*i], level[2*i+1])
		}
		level = next
	}
	wantRoot := level[0]

	for _, target := range txids {
		branch, pos, ok := MerkleProof(txids, target)
		if !ok {
			t.Fatalf("MerkleProof(%v) reported not found", target)
		}
		if got := recomputeRoot(target, branch, pos); got != wantRoot {
			t.Fatalf("recomputed root for %v = %v, want %v", target, got, wantRoot)
		}
	}
}

func TestMerkleProofMissingTxidNotFound(t *testing.T) {
	txids := []Txid{txidByte(1), txidByte(2)}
	if _, _, ok := MerkleProof(txids, txidByte(9)); ok {
		t.Fatalf("expected ok=false for a txid not in the block")
	}
}

func TestBuildMerkleBlockProofIncludesTargetAndFlags(t *testing.T) {
	txids := []Txid{txidByte(1), txidByte(2), txidByte(3)}
	hashes, flags, ok := BuildMerkleBlockProof(txids, txids[1])
	if !ok {
		t.Fatalf("expected ok=true for a txid present in the block")
	}
	if len(hashes) == 0 {
		t.Fatalf("expected a non-empty hash list")
	}
	if len(flags) == 0 {
		t.Fatalf("expected a non-empty flag byte list")
	}
}

func TestSerializeMerkleBlockRoundTripsHeaderBytes(t *testing.T) {
	var header wire.BlockHeader
	hashes, flags, ok := BuildMerkleBlockProof([]Txid{txidByte(1)}, txidByte(1))
	if !ok {
		t.Fatalf("expected ok=true")
	}
	raw, err := SerializeMerkleBlock(header, 1, hashes, flags)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raw) < 80 {
		t.Fatalf("expected at least an 80-byte header in the serialized output, got %d bytes", len(raw))
	}
}
