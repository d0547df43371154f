package lifecycle

import (
	"context"
	"errors"

	"github.com/erazemk/devtrack/internal/model"
)

// Reconciler replays batches of actions captured offline. Each action is
// applied independently through the engine's rules; one failure never
// affects the others.
type Reconciler struct {
	engine *Engine
}

// NewReconciler creates a reconciler that applies actions through e.
func NewReconciler(e *Engine) *Reconciler {
	return &Reconciler{engine: e}
}

// Reconcile applies actions in order and reports one result per action.
// A nil slice is rejected; an empty one yields an empty response.
// Successful actions publish their own events, and the batch publishes a
// single dashboard update at the end.
func (r *Reconciler) Reconcile(ctx context.Context, actor model.Actor, actions []model.SyncAction) (*model.SyncResponse, error) {
	if actions == nil {
		return nil, newError(ErrInvalidInput, "actions must be a list")
	}

	resp := &model.SyncResponse{Results: make([]model.SyncResult, 0, len(actions))}
	changed := false
	for i, action := range actions {
		result, out := r.apply(ctx, actor, action)
		if result.Success {
			resp.Synced++
		} else {
			r.engine.logger.Warn("sync action failed", "index", i, "type", action.Type,
				"device", action.DeviceID, "error", result.Error)
		}
		if len(out) > 0 {
			r.engine.publish(out)
			changed = true
		}
		resp.Results = append(resp.Results, result)
	}

	if changed {
		r.engine.events.Publish(EventDashboardUpdate, nil)
	}

	r.engine.logger.Info("sync batch reconciled", "actor", actor.ID, "actions", len(actions), "synced", resp.Synced)
	return resp, nil
}

func (r *Reconciler) apply(ctx context.Context, actor model.Actor, action model.SyncAction) (model.SyncResult, outbox) {
	result := model.SyncResult{Type: action.Type}
	if err := validateAction(action); err != nil {
		result.Error = err.Error()
		return result, nil
	}

	e := r.engine
	var out outbox
	var id int64
	var replayed bool
	err := e.store.Update(ctx, func(tx Tx) error {
		out = out[:0]
		replayed = false

		if action.Key != "" {
			receipt, err := tx.GetReceipt(ctx, action.Key)
			if err != nil {
				return err
			}
			if receipt != nil {
				if err := checkReceipt(receipt, action); err != nil {
					return err
				}
				id, replayed = receipt.ResultID, true
				return nil
			}
		}

		var a *model.Assignment
		var err error
		switch action.Type {
		case model.ActionTypeAssign:
			a, err = e.assign(ctx, tx, &out, actor, model.AssignRequest{
				DeviceID: action.DeviceID,
				UserID:   action.UserID,
				Notes:    action.Notes,
			})
		case model.ActionTypeReturn:
			a, err = e.giveBack(ctx, tx, &out, actor, model.ReturnRequest{
				Target:    model.LatestActiveForDevice(action.DeviceID),
				Condition: action.Condition,
				Notes:     action.Notes,
			})
		}
		if err != nil {
			return err
		}
		id = a.ID

		if action.Key == "" {
			return nil
		}
		return tx.PutReceipt(ctx, &model.SyncReceipt{
			Key:       action.Key,
			Type:      action.Type,
			DeviceID:  action.DeviceID,
			UserID:    action.UserID,
			ResultID:  a.ID,
			CreatedAt: e.timestamp(),
		})
	})
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrDependencyUnavailable) {
			e.logger.Error("sync action storage failure", "type", action.Type, "device", action.DeviceID, "error", err)
		}
		result.Error = publicMessage(err)
		return result, nil
	}

	result.ID = &id
	result.Success = true
	result.Replayed = replayed
	return result, out
}

// checkReceipt rejects a key reused for a different action. Receipts
// written before targets were recorded have a zero device and only the
// type is compared.
func checkReceipt(receipt *model.SyncReceipt, action model.SyncAction) error {
	if receipt.Type != action.Type {
		return newError(ErrInvalidInput, "key %q was already used for a %s action", action.Key, receipt.Type)
	}
	if receipt.DeviceID == 0 {
		return nil
	}
	if receipt.DeviceID != action.DeviceID || receipt.UserID != action.UserID {
		return newError(ErrInvalidInput, "key %q was already used for another device or user", action.Key)
	}
	return nil
}

func validateAction(action model.SyncAction) error {
	switch action.Type {
	case model.ActionTypeAssign:
		return validateAssign(model.AssignRequest{DeviceID: action.DeviceID, UserID: action.UserID})
	case model.ActionTypeReturn:
		if action.DeviceID <= 0 {
			return newError(ErrInvalidInput, "deviceId is required")
		}
		return nil
	default:
		return newError(ErrInvalidInput, "unknown action type %q", action.Type)
	}
}
