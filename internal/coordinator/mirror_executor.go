package coordinator

import (
	"context"
	"fmt"

	"github.com/product-estimator/estimator/internal/gateway"
	"github.com/product-estimator/estimator/internal/mirror"
)

// MirrorRemote is the session-mirroring surface of the gateway.
type MirrorRemote interface {
	AddProductToRoom(ctx context.Context, estimateID, roomID, productID string) error
	ReplaceProductInRoom(ctx context.Context, estimateID, roomID, oldProductID, newProductID, parentProductID string) error
	RemoveProductFromRoom(ctx context.Context, estimateID, roomID, productID string) error
	AddNewRoom(ctx context.Context, estimateID string, room gateway.RoomPayload) error
	AddNewEstimate(ctx context.Context, estimateID, name string) error
	RemoveRoom(ctx context.Context, estimateID, roomID string) error
	RemoveEstimate(ctx context.Context, estimateID string) error
	InvalidateFamily(family gateway.Family)
	InvalidateAll()
}

// MirrorExecutor runs mirror tasks against the gateway and invalidates the
// caches the server-side change makes stale.
type MirrorExecutor struct {
	remote MirrorRemote
}

func NewMirrorExecutor(remote MirrorRemote) *MirrorExecutor {
	return &MirrorExecutor{remote: remote}
}

func (m *MirrorExecutor) Execute(ctx context.Context, task mirror.Task) error {
	var err error
	switch task.Action {
	case gateway.ActionAddProductToRoom:
		err = m.remote.AddProductToRoom(ctx, task.EstimateID, task.RoomID, task.ProductID)
	case gateway.ActionReplaceProductInRoom:
		err = m.remote.ReplaceProductInRoom(ctx, task.EstimateID, task.RoomID, task.OldProductID, task.ProductID, task.ParentProductID)
	case gateway.ActionRemoveProductFromRoom:
		err = m.remote.RemoveProductFromRoom(ctx, task.EstimateID, task.RoomID, task.ProductID)
	case gateway.ActionAddNewRoom:
		err = m.remote.AddNewRoom(ctx, task.EstimateID, gateway.RoomPayload{
			ID:     task.RoomID,
			Name:   task.Name,
			Width:  task.Width,
			Length: task.Length,
		})
	case gateway.ActionAddNewEstimate:
		err = m.remote.AddNewEstimate(ctx, task.EstimateID, task.Name)
	case gateway.ActionRemoveRoom:
		err = m.remote.RemoveRoom(ctx, task.EstimateID, task.RoomID)
	case gateway.ActionRemoveEstimate:
		err = m.remote.RemoveEstimate(ctx, task.EstimateID)
	default:
		return fmt.Errorf("unknown mirror action %q", task.Action)
	}
	if err != nil {
		return err
	}
	switch task.Action {
	case gateway.ActionRemoveEstimate:
		m.remote.InvalidateAll()
	case gateway.ActionAddNewEstimate:
	default:
		for _, family := range roomCacheFamilies {
			m.remote.InvalidateFamily(family)
		}
	}
	return nil
}
