package withdrawal

import "github.com/ethereum/go-ethereum/common"

// ApproverSet is an insertion-ordered set of guardian addresses.
// Re-adding an existing guardian is a no-op, so a guardian never counts twice.
type ApproverSet struct {
	order []common.Address
}

// NewApproverSet builds a set from the given addresses, dropping duplicates.
func NewApproverSet(addrs ...common.Address) ApproverSet {
	var s ApproverSet
	for _, a := range addrs {
		s.Add(a)
	}
	return s
}

// Add inserts the address and reports whether the set changed.
func (s *ApproverSet) Add(addr common.Address) bool {
	if s.Contains(addr) {
		return false
	}
	s.order = append(s.order, addr)
	return true
}

// Remove deletes the address and reports whether it was present.
func (s *ApproverSet) Remove(addr common.Address) bool {
	for i, a := range s.order {
		if a == addr {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			return true
		}
	}
	return false
}

func (s ApproverSet) Contains(addr common.Address) bool {
	for _, a := range s.order {
		if a == addr {
			return true
		}
	}
	return false
}

func (s ApproverSet) Len() int {
	return len(s.order)
}

// List returns a copy of the members in approval order.
func (s ApproverSet) List() []common.Address {
	return append([]common.Address(nil), s.order...)
}

// ContainsAddress reports whether addr is in the list.
func ContainsAddress(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}
