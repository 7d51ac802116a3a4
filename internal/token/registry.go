package token

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrTokenExists     = errors.New("token already minted")
	ErrTokenNotFound   = errors.New("token not found")
	ErrNotAuthorized   = errors.New("not owner or approved")
	ErrInvalidReceiver = errors.New("invalid receiver")
)

// PositionRegistry is an in-memory ownership registry with per-token approvals
// and operator approvals, in the manner of an ERC721 collection.
type PositionRegistry struct {
	mu        sync.Mutex
	owners    map[uint64]common.Address
	approvals map[uint64]common.Address
	operators map[common.Address]map[common.Address]bool
	journal   journal
}

func NewPositionRegistry() *PositionRegistry {
	return &PositionRegistry{
		owners:    make(map[uint64]common.Address),
		approvals: make(map[uint64]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
	}
}

func (r *PositionRegistry) Mint(owner common.Address, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner == (common.Address{}) {
		return ErrInvalidReceiver
	}
	if _, exists := r.owners[id]; exists {
		return fmt.Errorf("%w: %d", ErrTokenExists, id)
	}
	r.setOwnerLocked(id, owner, true)
	return nil
}

func (r *PositionRegistry) Burn(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.owners[id]; !exists {
		return fmt.Errorf("%w: %d", ErrTokenNotFound, id)
	}
	r.setApprovalLocked(id, common.Address{})
	r.setOwnerLocked(id, common.Address{}, false)
	return nil
}

func (r *PositionRegistry) OwnerOf(id uint64) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[id]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", ErrTokenNotFound, id)
	}
	return owner, nil
}

// Approve lets spender act on a single token. caller must be the owner or an operator.
func (r *PositionRegistry) Approve(caller, spender common.Address, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTokenNotFound, id)
	}
	if caller != owner && !r.operators[owner][caller] {
		return ErrNotAuthorized
	}
	r.setApprovalLocked(id, spender)
	return nil
}

// SetApprovalForAll lets operator act on every token owner holds.
func (r *PositionRegistry) SetApprovalForAll(owner, operator common.Address, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops, ok := r.operators[owner]
	if !ok {
		ops = make(map[common.Address]bool)
		r.operators[owner] = ops
	}
	prev, existed := ops[operator]
	r.journal.append(func() {
		if existed {
			ops[operator] = prev
		} else {
			delete(ops, operator)
		}
	})
	ops[operator] = approved
}

// TransferFrom moves ownership of id and clears its single-token approval.
func (r *PositionRegistry) TransferFrom(caller, from, to common.Address, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTokenNotFound, id)
	}
	if owner != from {
		return fmt.Errorf("%w: %s does not own %d", ErrNotAuthorized, from.Hex(), id)
	}
	if to == (common.Address{}) {
		return ErrInvalidReceiver
	}
	if !r.isOwnerOrApprovedLocked(caller, id) {
		return ErrNotAuthorized
	}
	r.setApprovalLocked(id, common.Address{})
	r.setOwnerLocked(id, to, true)
	return nil
}

func (r *PositionRegistry) IsOwnerOrApproved(caller common.Address, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isOwnerOrApprovedLocked(caller, id)
}

// CanAct implements vault.AuthorizationProvider.
func (r *PositionRegistry) CanAct(caller common.Address, id uint64) bool {
	return r.IsOwnerOrApproved(caller, id)
}

// TokensOf lists the ids held by owner in ascending order.
func (r *PositionRegistry) TokensOf(owner common.Address) []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uint64, 0)
	for id, o := range r.owners {
		if o == owner {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *PositionRegistry) Snapshot() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.journal.snapshot()
}

func (r *PositionRegistry) RevertToSnapshot(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.journal.revert(id)
}

func (r *PositionRegistry) DiscardSnapshot(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.journal.discard(id)
}

func (r *PositionRegistry) isOwnerOrApprovedLocked(caller common.Address, id uint64) bool {
	owner, ok := r.owners[id]
	if !ok {
		return false
	}
	if caller == owner {
		return true
	}
	if approved, ok := r.approvals[id]; ok && approved == caller {
		return true
	}
	return r.operators[owner][caller]
}

func (r *PositionRegistry) setOwnerLocked(id uint64, owner common.Address, present bool) {
	prev, existed := r.owners[id]
	r.journal.append(func() {
		if existed {
			r.owners[id] = prev
		} else {
			delete(r.owners, id)
		}
	})
	if present {
		r.owners[id] = owner
	} else {
		delete(r.owners, id)
	}
}

func (r *PositionRegistry) setApprovalLocked(id uint64, spender common.Address) {
	prev, existed := r.approvals[id]
	r.journal.append(func() {
		if existed {
			r.approvals[id] = prev
		} else {
			delete(r.approvals, id)
		}
	})
	if spender == (common.Address{}) {
		delete(r.approvals, id)
		return
	}
	r.approvals[id] = spender
}
