package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"
	"votevault/pkg/election"
)

var (
	bucketElections = []byte("elections")
	bucketVotes     = []byte("votes") // one nested bucket per election, keyed by sequence
	bucketVoters    = []byte("voters")
	bucketHashes    = []byte("vote_hashes")
	bucketResults   = []byte("results")
)

// Bolt is a Store backed by a bbolt database file. Uniqueness constraints are
// checked and written inside a single read-write transaction.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketElections, bucketVotes, bucketVoters, bucketHashes, bucketResults} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise store: %w", err)
	}
	return &Bolt{db: db}, nil
}

func voterIndexKey(electionRef, voterRef string) []byte {
	return []byte(electionRef + "\x00" + voterRef)
}

func putJSON(b *bbolt.Bucket, key []byte, v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, buf)
}

func (s *Bolt) SaveElection(ctx context.Context, e *election.Election) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(bucketElections), []byte(e.Ref), e)
	})
}

func (s *Bolt) FindElection(ctx context.Context, ref string) (*election.Election, error) {
	var e election.Election
	err := s.db.View(func(tx *bbolt.Tx) error {
		buf := tx.Bucket(bucketElections).Get([]byte(ref))
		if buf == nil {
			return fmt.Errorf("election %s: %w", ref, election.ErrNotFound)
		}
		return json.Unmarshal(buf, &e)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Bolt) UpdateElectionStatus(ctx context.Context, ref string, from, to election.Status) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketElections)
		buf := b.Get([]byte(ref))
		if buf == nil {
			return fmt.Errorf("election %s: %w", ref, election.ErrNotFound)
		}
		var e election.Election
		if err := json.Unmarshal(buf, &e); err != nil {
			return err
		}
		if e.Status != from {
			return fmt.Errorf("%w: election %s is %s, expected %s", election.ErrInvalidState, ref, e.Status, from)
		}
		e.Status = to
		return putJSON(b, []byte(ref), &e)
	})
}

func (s *Bolt) SaveVote(ctx context.Context, doc *VoteDocument) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		voters := tx.Bucket(bucketVoters)
		hashes := tx.Bucket(bucketHashes)
		vk := voterIndexKey(doc.ElectionRef, doc.VoterRef)
		if voters.Get(vk) != nil {
			return fmt.Errorf("%w: %s in election %s", election.ErrAlreadyVoted, doc.VoterRef, doc.ElectionRef)
		}
		if hashes.Get([]byte(doc.VoteHash)) != nil {
			return fmt.Errorf("%w: vote hash %s already stored", election.ErrValidation, doc.VoteHash)
		}

		eb, err := tx.Bucket(bucketVotes).CreateBucketIfNotExists([]byte(doc.ElectionRef))
		if err != nil {
			return err
		}
		seq, err := eb.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := putJSON(eb, key, doc); err != nil {
			return err
		}
		if err := voters.Put(vk, []byte(doc.ID)); err != nil {
			return err
		}
		return hashes.Put([]byte(doc.VoteHash), append([]byte(doc.ElectionRef+"\x00"), key...))
	})
}

func (s *Bolt) FindVotes(ctx context.Context, electionRef string, verifiedOnly bool) ([]*VoteDocument, error) {
	var out []*VoteDocument
	err := s.db.View(func(tx *bbolt.Tx) error {
		eb := tx.Bucket(bucketVotes).Bucket([]byte(electionRef))
		if eb == nil {
			return nil
		}
		return eb.ForEach(func(_, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc := new(VoteDocument)
			if err := json.Unmarshal(v, doc); err != nil {
				return err
			}
			if !verifiedOnly || doc.Verified {
				out = append(out, doc)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// locateVote resolves the hash index to the vote's election bucket and key.
func locateVote(tx *bbolt.Tx, voteHash string) (*bbolt.Bucket, []byte, error) {
	loc := tx.Bucket(bucketHashes).Get([]byte(voteHash))
	if loc == nil {
		return nil, nil, fmt.Errorf("vote %s: %w", voteHash, election.ErrNotFound)
	}
	sep := bytes.IndexByte(loc, 0)
	if sep < 0 {
		return nil, nil, fmt.Errorf("corrupt hash index entry for %s", voteHash)
	}
	eb := tx.Bucket(bucketVotes).Bucket(loc[:sep])
	key := append([]byte(nil), loc[sep+1:]...)
	if eb == nil || eb.Get(key) == nil {
		return nil, nil, fmt.Errorf("corrupt hash index entry for %s", voteHash)
	}
	return eb, key, nil
}

func (s *Bolt) FindVoteByHash(ctx context.Context, voteHash string) (*VoteDocument, error) {
	doc := new(VoteDocument)
	err := s.db.View(func(tx *bbolt.Tx) error {
		eb, key, err := locateVote(tx, voteHash)
		if err != nil {
			return err
		}
		return json.Unmarshal(eb.Get(key), doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Bolt) ConfirmVote(ctx context.Context, voteHash, txRef string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		eb, key, err := locateVote(tx, voteHash)
		if err != nil {
			return err
		}
		var doc VoteDocument
		if err := json.Unmarshal(eb.Get(key), &doc); err != nil {
			return err
		}
		doc.TransactionRef = txRef
		doc.Verified = true
		return putJSON(eb, key, &doc)
	})
}

func (s *Bolt) DiscardVote(ctx context.Context, voteHash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		eb, key, err := locateVote(tx, voteHash)
		if err != nil {
			return err
		}
		var doc VoteDocument
		if err := json.Unmarshal(eb.Get(key), &doc); err != nil {
			return err
		}
		if doc.Verified {
			return fmt.Errorf("%w: vote %s is verified", election.ErrInvalidState, voteHash)
		}
		if err := eb.Delete(key); err != nil {
			return err
		}
		if err := tx.Bucket(bucketVoters).Delete(voterIndexKey(doc.ElectionRef, doc.VoterRef)); err != nil {
			return err
		}
		return tx.Bucket(bucketHashes).Delete([]byte(voteHash))
	})
}

func (s *Bolt) HasVoted(ctx context.Context, electionRef, voterRef string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketVoters).Get(voterIndexKey(electionRef, voterRef)) != nil
		return nil
	})
	return found, err
}

func (s *Bolt) PublishResult(ctx context.Context, r *election.TallyResult) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		results := tx.Bucket(bucketResults)
		if results.Get([]byte(r.ElectionRef)) != nil {
			return fmt.Errorf("election %s: %w", r.ElectionRef, election.ErrDuplicateResult)
		}
		elections := tx.Bucket(bucketElections)
		buf := elections.Get([]byte(r.ElectionRef))
		if buf == nil {
			return fmt.Errorf("election %s: %w", r.ElectionRef, election.ErrNotFound)
		}
		var e election.Election
		if err := json.Unmarshal(buf, &e); err != nil {
			return err
		}
		if e.Status != election.StatusEnded {
			return fmt.Errorf("%w: election %s is %s, expected %s", election.ErrInvalidState, r.ElectionRef, e.Status, election.StatusEnded)
		}
		e.Status = election.StatusResultsPublished
		if err := putJSON(elections, []byte(r.ElectionRef), &e); err != nil {
			return err
		}
		return putJSON(results, []byte(r.ElectionRef), r)
	})
}

func (s *Bolt) FindResult(ctx context.Context, electionRef string) (*election.TallyResult, error) {
	var r election.TallyResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		buf := tx.Bucket(bucketResults).Get([]byte(electionRef))
		if buf == nil {
			return fmt.Errorf("result for election %s: %w", electionRef, election.ErrNotFound)
		}
		return json.Unmarshal(buf, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Bolt) UpdateResultAnchor(ctx context.Context, electionRef string, anchor election.Anchor) (*election.TallyResult, error) {
	var r election.TallyResult
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketResults)
		buf := b.Get([]byte(electionRef))
		if buf == nil {
			return fmt.Errorf("result for election %s: %w", electionRef, election.ErrNotFound)
		}
		if err := json.Unmarshal(buf, &r); err != nil {
			return err
		}
		r.Metadata.Anchor = &anchor
		r.Finalized = true
		return putJSON(b, []byte(electionRef), &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Bolt) Close() error {
	return s.db.Close()
}
