package ledger

import (
	"bytes"
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/sha3"
)

// Entry is the registration payload for one artifact.
type Entry struct {
	RecordID      string `json:"record_id"`
	MintAddress   string `json:"mint_address"`
	ProducerID    string `json:"producer_id"`
	RecipientID   string `json:"recipient_id"`
	ContentSHA256 string `json:"content_sha256"`
	MetadataURI   string `json:"metadata_uri"`
}

// Block is one link of the chain. Hash doubles as the transaction id.
type Block struct {
	Index     int    `json:"index"`
	PrevHash  string `json:"prev_hash"`
	Timestamp int64  `json:"timestamp"`
	Entry     Entry  `json:"entry"`
	Hash      string `json:"hash"`
}

type header struct {
	Index     int    `json:"index"`
	PrevHash  string `json:"prev_hash"`
	Timestamp int64  `json:"timestamp"`
	Entry     Entry  `json:"entry"`
}

// ComputeHash returns the Keccak-256 of the block header in canonical JSON.
func (b Block) ComputeHash() (string, error) {
	canonical, err := canonicalJSON(header{
		Index:     b.Index,
		PrevHash:  b.PrevHash,
		Timestamp: b.Timestamp,
		Entry:     b.Entry,
	})
	if err != nil {
		return "", err
	}
	sum := sha3.NewLegacyKeccak256()
	sum.Write(canonical)
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// canonicalJSON re-encodes v through a generic map so object keys come out
// sorted at every level.
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
