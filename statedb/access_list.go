package statedb

import "github.com/ethereum/go-ethereum/common"

// accessList is the warm set of one transaction. It only ever grows.
type accessList struct {
	addresses map[common.Address]map[common.Hash]struct{}
}

func newAccessList() *accessList {
	return &accessList{addresses: make(map[common.Address]map[common.Hash]struct{})}
}

func (al *accessList) containsAddress(addr common.Address) bool {
	_, ok := al.addresses[addr]
	return ok
}

func (al *accessList) contains(addr common.Address, slot common.Hash) (addressPresent bool, slotPresent bool) {
	slots, ok := al.addresses[addr]
	if !ok {
		return false, false
	}
	_, slotPresent = slots[slot]
	return true, slotPresent
}

// addAddress reports whether addr was newly added, i.e. was cold.
func (al *accessList) addAddress(addr common.Address) bool {
	if _, ok := al.addresses[addr]; ok {
		return false
	}
	al.addresses[addr] = make(map[common.Hash]struct{})
	return true
}

// addSlot reports whether the slot was newly added, i.e. was cold.
func (al *accessList) addSlot(addr common.Address, slot common.Hash) bool {
	al.addAddress(addr)
	if _, ok := al.addresses[addr][slot]; ok {
		return false
	}
	al.addresses[addr][slot] = struct{}{}
	return true
}

func (al *accessList) len() (addresses int, slots int) {
	for _, s := range al.addresses {
		addresses++
		slots += len(s)
	}
	return
}
