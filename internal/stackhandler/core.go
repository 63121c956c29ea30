package stackhandler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"futuresexec/internal/logger"
	"futuresexec/internal/order"
	"futuresexec/internal/stack"
)

type PlaceOptions struct {
	// ParentAllowZero admits a zero-trade parent (roll pseudo orders).
	ParentAllowZero bool
}

type Placement struct {
	ParentID uint64
	ChildIDs []uint64
}

// PlaceParentAndChildren inserts a new parent and its children so that
// either all of them end up on the stacks, unlocked and linked, or none do.
// The parent is inserted locked and stays locked until the outcome is
// known; a parent left locked marks an unfinished placement.
func (h *Handler) PlaceParentAndChildren(ctx context.Context, parentStack, childStack stack.Stack, parent *order.Order, children []*order.Order, opts PlaceOptions) (Placement, error) {
	p := parent.Clone()
	p.Lock(h.now())
	p.TxState = order.TxPending
	p.Children = nil
	parentID, err := parentStack.PutOrder(ctx, p, stack.PutOptions{AllowZero: opts.ParentAllowZero})
	if err != nil {
		return Placement{}, fmt.Errorf("put parent on %s stack: %w", parentStack.Name(), err)
	}
	p.ID = parentID
	lc := logger.ForOrder(parentStack.Name(), p)

	childIDs, err := h.putChildren(ctx, childStack, parentID, children)
	if err != nil {
		if rbErr := h.rollback(ctx, parentStack, childStack, parentID, childIDs, err, lc); rbErr != nil {
			return Placement{}, rbErr
		}
		h.discardParent(ctx, parentStack, parentID, lc)
		return Placement{}, fmt.Errorf("%w: %v", ErrRolledBack, err)
	}

	if err := h.commit(ctx, parentStack, parentID, childIDs); err != nil {
		if rbErr := h.rollback(ctx, parentStack, childStack, parentID, childIDs, err, lc); rbErr != nil {
			return Placement{}, rbErr
		}
		h.discardParent(ctx, parentStack, parentID, lc)
		return Placement{}, fmt.Errorf("%w: link children: %v", ErrRolledBack, err)
	}
	h.logger.Info("placed parent and children", lc.With(zap.Uint64s("children", childIDs))...)
	return Placement{ParentID: parentID, ChildIDs: childIDs}, nil
}

// SpawnChildrenForExisting runs the same protocol for a parent that is
// already on its stack: lock it, insert children, then link and unlock.
// A rolled back spawn leaves the parent unlocked and childless.
func (h *Handler) SpawnChildrenForExisting(ctx context.Context, parentStack, childStack stack.Stack, parentID uint64, children []*order.Order) ([]uint64, error) {
	now := h.now()
	parent, err := parentStack.UpdateOrder(ctx, parentID, func(o *order.Order) error {
		if o.Locked {
			return stack.ErrOrderLocked
		}
		if o.HasChildren() {
			return stack.ErrChildrenAlreadySet
		}
		o.Lock(now)
		o.TxState = order.TxPending
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lock %s order %d: %w", parentStack.Name(), parentID, err)
	}
	lc := logger.ForOrder(parentStack.Name(), parent)

	childIDs, err := h.putChildren(ctx, childStack, parentID, children)
	if err != nil {
		if rbErr := h.rollback(ctx, parentStack, childStack, parentID, childIDs, err, lc); rbErr != nil {
			return nil, rbErr
		}
		h.releaseParent(ctx, parentStack, parentID, lc)
		return nil, fmt.Errorf("%w: %v", ErrRolledBack, err)
	}

	if err := h.commit(ctx, parentStack, parentID, childIDs); err != nil {
		if rbErr := h.rollback(ctx, parentStack, childStack, parentID, childIDs, err, lc); rbErr != nil {
			return nil, rbErr
		}
		h.releaseParent(ctx, parentStack, parentID, lc)
		return nil, fmt.Errorf("%w: link children: %v", ErrRolledBack, err)
	}
	h.logger.Info("spawned children", lc.With(zap.Uint64s("children", childIDs))...)
	return childIDs, nil
}

// putChildren returns the ids inserted so far even on error.
func (h *Handler) putChildren(ctx context.Context, childStack stack.Stack, parentID uint64, children []*order.Order) ([]uint64, error) {
	if len(children) == 0 {
		return nil, errors.New("no child orders")
	}
	ids := make([]uint64, 0, len(children))
	for _, c := range children {
		child := c.Clone()
		child.Parent = parentID
		child.Locked = false
		child.LockedAt = nil
		id, err := childStack.PutOrder(ctx, child, stack.PutOptions{})
		if err != nil {
			return ids, fmt.Errorf("put child on %s stack: %w", childStack.Name(), err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// rollback removes inserted children. It returns a RollbackFailedError if
// any could not be removed, leaving the parent locked.
func (h *Handler) rollback(ctx context.Context, parentStack, childStack stack.Stack, parentID uint64, childIDs []uint64, cause error, lc logger.OrderContext) error {
	var orphans []uint64
	for _, id := range childIDs {
		if err := childStack.RemoveOrder(ctx, id); err != nil && !errors.Is(err, stack.ErrOrderNotFound) {
			h.logger.Warn("rollback: remove child failed", lc.With(zap.Uint64("child_id", id), zap.Error(err))...)
			orphans = append(orphans, id)
		}
	}
	if len(orphans) == 0 {
		h.logger.Warn("placement rolled back", lc.With(zap.Error(cause))...)
		return nil
	}
	h.critical(ctx, "child order rollback failed; parent left locked", lc.With(zap.Uint64s("orphans", orphans), zap.Error(cause))...)
	return &RollbackFailedError{Stack: parentStack.Name(), ParentID: parentID, Orphans: orphans, Cause: cause}
}

// discardParent unlocks, marks and removes a parent whose children were
// all rolled back. If removal fails the order is left cancelled so nothing
// acts on it; end-of-day removal collects it.
func (h *Handler) discardParent(ctx context.Context, parentStack stack.Stack, parentID uint64, lc logger.OrderContext) {
	_, err := parentStack.UpdateOrder(ctx, parentID, func(o *order.Order) error {
		o.Unlock()
		o.TxState = order.TxRolledBack
		o.Status = order.StatusCancelled
		return nil
	})
	if err != nil {
		h.logger.Warn("rollback: unlock parent failed", lc.With(zap.Error(err))...)
		return
	}
	if err := parentStack.RemoveOrder(ctx, parentID); err != nil {
		h.logger.Warn("rollback: remove parent failed", lc.With(zap.Error(err))...)
	}
}

func (h *Handler) commit(ctx context.Context, parentStack stack.Stack, parentID uint64, childIDs []uint64) error {
	_, err := parentStack.UpdateOrder(ctx, parentID, func(o *order.Order) error {
		if o.HasChildren() {
			return stack.ErrChildrenAlreadySet
		}
		o.Children = append([]uint64(nil), childIDs...)
		o.Unlock()
		o.TxState = order.TxCommitted
		return nil
	})
	return err
}

// releaseParent unlocks an existing parent after its spawn rolled back.
func (h *Handler) releaseParent(ctx context.Context, parentStack stack.Stack, parentID uint64, lc logger.OrderContext) {
	_, err := parentStack.UpdateOrder(ctx, parentID, func(o *order.Order) error {
		o.Unlock()
		o.TxState = order.TxRolledBack
		return nil
	})
	if err != nil {
		h.logger.Warn("rollback: unlock parent failed", lc.With(zap.Error(err))...)
	}
}

// ParentLocked reports whether o's parent is mid-placement. Children of a
// locked parent must not be acted on.
func ParentLocked(ctx context.Context, parentStack stack.Stack, o *order.Order) (bool, error) {
	if parentStack == nil || !o.HasParent() {
		return false, nil
	}
	p, err := parentStack.GetOrder(ctx, o.Parent)
	if errors.Is(err, stack.ErrOrderNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Locked, nil
}
