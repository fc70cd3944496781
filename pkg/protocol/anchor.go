package protocol

import (
	"encoding/hex"
	"fmt"

	"votevault/pkg/context"
	"votevault/pkg/crypto"
	"votevault/pkg/election"
	"votevault/pkg/ledger"
	"votevault/pkg/log"
	"votevault/pkg/metrics"
	"votevault/pkg/serialization"
)

// ResultSigner signs a result digest on behalf of the tallying authority.
type ResultSigner interface {
	SignResult(digest []byte) (string, error)
}

// ResultDigest returns the keccak256 commitment to a result's counts and vote root.
func ResultDigest(r *election.TallyResult) (string, error) {
	s := serialization.NewSerializer()
	s.WriteString(r.ElectionRef)
	s.WriteString(r.VoteRoot)
	s.WriteUint64(uint64(len(r.Results)))
	for _, c := range r.Results {
		s.WriteString(c.CandidateID)
		s.WriteInt(c.Votes)
	}
	s.WriteInt(r.Metadata.InvalidVotes)
	data, err := s.Bytes()
	if err != nil {
		return "", err
	}
	return crypto.Digest(data, crypto.Keccak256)
}

// AnchorResult records the digest of an election's result on the ledger, signs
// it, and finalizes the stored result with the returned anchoring data. It
// returns the finalized result and the base64 digest signature.
func (e *Engine) AnchorResult(ctx *context.OperationContext, electionRef string, anchorer ledger.Anchorer, signer ResultSigner) (*election.TallyResult, string, error) {
	result, err := e.store.FindResult(ctx.Context(), electionRef)
	if err != nil {
		return nil, "", err
	}
	digest, err := ResultDigest(result)
	if err != nil {
		return nil, "", fmt.Errorf("failed to digest result of election %s: %w", electionRef, err)
	}

	var signature string
	if err = ctx.Recorder.Record("SignResult", metrics.MCrypto, func() error {
		raw, err := hex.DecodeString(digest)
		if err != nil {
			return err
		}
		signature, err = signer.SignResult(raw)
		return err
	}); err != nil {
		return nil, "", fmt.Errorf("failed to sign result of election %s: %w", electionRef, err)
	}

	var (
		height uint64
		txRef  string
	)
	if err = ctx.Recorder.Record("AnchorResult", metrics.MLedger, func() error {
		height, txRef, err = anchorer.AnchorResult(ctx.Context(), electionRef, digest)
		return err
	}); err != nil {
		return nil, "", fmt.Errorf("failed to anchor result of election %s: %w", electionRef, err)
	}
	log.Debug("Result digest %s for election %s anchored on network %d", digest, electionRef, anchorer.NetworkID())

	finalized, err := e.finalize(ctx, electionRef, election.Anchor{
		NetworkID:       anchorer.NetworkID(),
		ContractAddress: anchorer.ContractAddress(),
		BlockHeight:     height,
		TransactionRef:  txRef,
	})
	if err != nil {
		return nil, "", err
	}
	return finalized, signature, nil
}
