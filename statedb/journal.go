package statedb

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// journalEntry is a modification that can be undone. Warm-access marks are
// deliberately not journalled.
type journalEntry interface {
	revert(s *StateDB)
}

type revision struct {
	id           int
	journalIndex int
}

type journal struct {
	entries        []journalEntry
	validRevisions []revision
	nextRevisionID int
}

func newJournal() *journal {
	return &journal{}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) length() int {
	return len(j.entries)
}

func (j *journal) snapshot() int {
	id := j.nextRevisionID
	j.nextRevisionID++
	j.validRevisions = append(j.validRevisions, revision{id, j.length()})
	return id
}

// revertTo undoes every entry recorded after snapshot id, newest first.
func (j *journal) revertTo(s *StateDB, id int) bool {
	idx := -1
	for i := len(j.validRevisions) - 1; i >= 0; i-- {
		if j.validRevisions[i].id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	snapshot := j.validRevisions[idx].journalIndex
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		j.entries[i].revert(s)
	}
	j.entries = j.entries[:snapshot]
	j.validRevisions = j.validRevisions[:idx]
	return true
}

type (
	// an object entered the state (first write to a missing account)
	createObjectChange struct {
		account common.Address
	}
	// an object was replaced wholesale by contract creation
	resetObjectChange struct {
		account common.Address
		prev    *stateObject
	}
	selfDestructChange struct {
		account     common.Address
		prev        bool
		prevBalance *uint256.Int
	}
	balanceChange struct {
		account common.Address
		prev    *uint256.Int
	}
	nonceChange struct {
		account common.Address
		prev    uint64
	}
	storageChange struct {
		account   common.Address
		key       common.Hash
		prev      common.Hash
		prevDirty bool
	}
	codeChange struct {
		account       common.Address
		prevCode      []byte
		prevHash      common.Hash
		prevDirtyCode bool
	}
	addLogChange struct{}
)

func (ch createObjectChange) revert(s *StateDB) {
	if obj := s.objects[ch.account]; obj != nil {
		obj.exists = false
	}
}

func (ch resetObjectChange) revert(s *StateDB) {
	s.objects[ch.account] = ch.prev
}

func (ch selfDestructChange) revert(s *StateDB) {
	if obj := s.objects[ch.account]; obj != nil {
		obj.selfDestructed = ch.prev
		obj.data.Balance = ch.prevBalance
	}
}

func (ch balanceChange) revert(s *StateDB) {
	s.objects[ch.account].data.Balance = ch.prev
}

func (ch nonceChange) revert(s *StateDB) {
	s.objects[ch.account].data.Nonce = ch.prev
}

func (ch storageChange) revert(s *StateDB) {
	obj := s.objects[ch.account]
	if ch.prevDirty {
		obj.dirtyStorage[ch.key] = ch.prev
	} else {
		delete(obj.dirtyStorage, ch.key)
	}
}

func (ch codeChange) revert(s *StateDB) {
	obj := s.objects[ch.account]
	obj.code = ch.prevCode
	obj.data.CodeHash = ch.prevHash
	obj.dirtyCode = ch.prevDirtyCode
}

func (ch addLogChange) revert(s *StateDB) {
	s.logs = s.logs[:len(s.logs)-1]
}
