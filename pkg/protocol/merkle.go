package protocol

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cbergoon/merkletree"
)

// voteLeaf is a counted vote hash as a Merkle tree leaf.
type voteLeaf struct {
	hash string
}

func (l voteLeaf) CalculateHash() ([]byte, error) {
	h := sha256.New()
	if _, err := h.Write([]byte(l.hash)); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func (l voteLeaf) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(voteLeaf)
	if !ok {
		return false, fmt.Errorf("unexpected merkle content %T", other)
	}
	return l.hash == o.hash, nil
}

func buildVoteTree(hashes []string) (*merkletree.MerkleTree, error) {
	leaves := make([]merkletree.Content, len(hashes))
	for i, h := range hashes {
		leaves[i] = voteLeaf{hash: h}
	}
	return merkletree.NewTree(leaves)
}

// VoteRoot returns the hex Merkle root over vote hashes, or "" when there are none.
func VoteRoot(hashes []string) (string, error) {
	if len(hashes) == 0 {
		return "", nil
	}
	tree, err := buildVoteTree(hashes)
	if err != nil {
		return "", fmt.Errorf("failed to build vote tree: %w", err)
	}
	return hex.EncodeToString(tree.MerkleRoot()), nil
}

// InclusionProof shows that a vote hash was counted in a published result.
type InclusionProof struct {
	ElectionRef string
	VoteHash    string
	Root        string
	// Siblings are hex node hashes from the leaf up. Right[i] reports whether
	// Siblings[i] sits to the right of the running hash.
	Siblings []string
	Right    []bool
}

func newInclusionProof(electionRef, voteHash string, hashes []string) (*InclusionProof, error) {
	tree, err := buildVoteTree(hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to build vote tree: %w", err)
	}
	path, index, err := tree.GetMerklePath(voteLeaf{hash: voteHash})
	if err != nil {
		return nil, err
	}
	if path == nil {
		return nil, fmt.Errorf("vote %s is not in the tree", voteHash)
	}
	proof := &InclusionProof{
		ElectionRef: electionRef,
		VoteHash:    voteHash,
		Root:        hex.EncodeToString(tree.MerkleRoot()),
		Siblings:    make([]string, len(path)),
		Right:       make([]bool, len(index)),
	}
	for i := range path {
		proof.Siblings[i] = hex.EncodeToString(path[i])
		proof.Right[i] = index[i] == 1
	}
	return proof, nil
}

// Verify recomputes the root from the vote hash and the sibling path.
func (p *InclusionProof) Verify() bool {
	if len(p.Siblings) != len(p.Right) {
		return false
	}
	current, err := voteLeaf{hash: p.VoteHash}.CalculateHash()
	if err != nil {
		return false
	}
	for i, s := range p.Siblings {
		sibling, err := hex.DecodeString(s)
		if err != nil {
			return false
		}
		h := sha256.New()
		if p.Right[i] {
			h.Write(current)
			h.Write(sibling)
		} else {
			h.Write(sibling)
			h.Write(current)
		}
		current = h.Sum(nil)
	}
	root, err := hex.DecodeString(p.Root)
	if err != nil {
		return false
	}
	return bytes.Equal(current, root)
}
