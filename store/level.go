package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/oxidex/peerpool/address"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// keyPrefix namespaces node records within the daemon's shared leveldb
// instance, so other record families can share the same database file.
var keyPrefix = []byte("node/")

// nodeRecord is the on-disk encoding of a Node. JSON is used here rather
// than a hand-rolled binary format: unlike the wire Framer, this encoding
// never crosses the network and carries no interoperability requirement,
// so there is nothing for a bespoke codec to buy beyond what encoding/json
// already gives for free.
type nodeRecord struct {
	PubKey          []byte          `json:"pubKey"`
	Addresses       []addressRecord `json:"addresses"`
	LastAddress     *addressRecord  `json:"lastAddress,omitempty"`
	ReputationScore int             `json:"reputationScore"`
	Banned          bool            `json:"banned"`
}

type addressRecord struct {
	Host          string `json:"host"`
	Port          uint16 `json:"port"`
	LastConnected int64  `json:"lastConnected,omitempty"` // unix nanos
}

// LevelStore is a goleveldb-backed NodeStore, persist-on-mutate.
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevelStore opens (creating if absent) a leveldb database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelStore{db: db}, nil
}

// Close releases the underlying leveldb handle.
func (s *LevelStore) Close() error {
	return s.db.Close()
}

func nodeKey(pubKey []byte) []byte {
	return append(append([]byte(nil), keyPrefix...), pubKey...)
}

func (s *LevelStore) Load() ([]*Node, error) {
	var out []*Node
	var iter iterator.Iterator = s.db.NewIterator(util.BytesPrefix(keyPrefix), nil)
	defer iter.Release()
	for iter.Next() {
		var rec nodeRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue // best-effort: skip a corrupt record rather than fail startup
		}
		out = append(out, fromRecord(&rec))
	}
	return out, iter.Error()
}

func (s *LevelStore) Upsert(n *Node) error {
	if len(n.PubKey) == 0 {
		return errors.New("store: node pubkey must not be empty")
	}
	b, err := json.Marshal(toRecord(n))
	if err != nil {
		return err
	}
	return s.db.Put(nodeKey(n.PubKey), b, nil)
}

func (s *LevelStore) Remove(pubKey []byte) error {
	return s.db.Delete(nodeKey(pubKey), nil)
}

func toRecord(n *Node) *nodeRecord {
	rec := &nodeRecord{
		PubKey:          n.PubKey,
		ReputationScore: n.ReputationScore,
		Banned:          n.Banned,
	}
	for _, a := range n.Addresses {
		rec.Addresses = append(rec.Addresses, toAddressRecord(a))
	}
	if n.LastAddress != nil {
		ar := toAddressRecord(*n.LastAddress)
		rec.LastAddress = &ar
	}
	return rec
}

func fromRecord(rec *nodeRecord) *Node {
	n := &Node{
		PubKey:          rec.PubKey,
		ReputationScore: rec.ReputationScore,
		Banned:          rec.Banned,
	}
	for _, a := range rec.Addresses {
		n.Addresses = append(n.Addresses, fromAddressRecord(a))
	}
	if rec.LastAddress != nil {
		la := fromAddressRecord(*rec.LastAddress)
		n.LastAddress = &la
	}
	return n
}

func toAddressRecord(a address.Address) addressRecord {
	r := addressRecord{Host: a.Host, Port: a.Port}
	if !a.LastConnected.IsZero() {
		r.LastConnected = a.LastConnected.UnixNano()
	}
	return r
}

func fromAddressRecord(r addressRecord) address.Address {
	a := address.New(r.Host, r.Port)
	if r.LastConnected != 0 {
		a.LastConnected = time.Unix(0, r.LastConnected)
	}
	return a
}
