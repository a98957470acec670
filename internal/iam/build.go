package iam

import "github.com/botecohq/boteco/internal/models"

// BuildInput is everything a snapshot build needs, loaded up front so the
// builder itself performs no I/O and stays trivially testable.
type BuildInput struct {
	RestaurantID string
	UserID       string
	PermVersion  int64
	IsSuperadmin bool
	IsOwner      bool

	// Modules must arrive with Submodules and Features preloaded and sorted.
	Modules []models.Module
	Actions []models.Action

	Entitlements    map[EntityRef]EntitlementStatus
	RolePermissions map[PermKey]bool
	Overrides       map[PermKey]bool
}

// BuildSnapshot assembles the full permission tree for one user in one
// restaurant. Lock state propagates downward: a locked module locks every
// submodule and feature beneath it regardless of their own entitlements.
func BuildSnapshot(in BuildInput) *Snapshot {
	snap := &Snapshot{
		RestaurantID: in.RestaurantID,
		UserID:       in.UserID,
		PermVersion:  in.PermVersion,
		IsSuperadmin: in.IsSuperadmin,
		IsOwner:      in.IsOwner,
		Modules:      make([]ModuleNode, 0, len(in.Modules)),
	}

	for _, mod := range in.Modules {
		modStatus := in.entitlementStatus(EntityModule, mod.ID)
		modLocked := !modStatus.Unlocked()

		node := ModuleNode{
			ID:         mod.ID,
			Key:        mod.Key,
			Name:       mod.Name,
			SortOrder:  mod.SortOrder,
			Visible:    mod.Visible,
			Status:     modStatus,
			Locked:     modLocked,
			Submodules: make([]SubmoduleNode, 0, len(mod.Submodules)),
		}

		for _, sub := range mod.Submodules {
			subStatus := in.entitlementStatus(EntitySubmodule, sub.ID)
			subLocked := modLocked || !subStatus.Unlocked()

			subNode := SubmoduleNode{
				ID:        sub.ID,
				Key:       sub.Key,
				Name:      sub.Name,
				SortOrder: sub.SortOrder,
				Visible:   sub.Visible,
				Status:    subStatus,
				Locked:    subLocked,
				Features:  make([]FeatureNode, 0, len(sub.Features)),
			}
			for _, feat := range sub.Features {
				subNode.Features = append(subNode.Features, in.buildFeature(feat, subLocked))
			}
			node.Submodules = append(node.Submodules, subNode)
		}

		// Features attached directly to the module, skipping the
		// submodule level.
		for _, feat := range mod.Features {
			node.Features = append(node.Features, in.buildFeature(feat, modLocked))
		}

		snap.Modules = append(snap.Modules, node)
	}

	return snap
}

func (in BuildInput) buildFeature(feat models.Feature, parentLocked bool) FeatureNode {
	featStatus := in.entitlementStatus(EntityFeature, feat.ID)
	featLocked := parentLocked || !featStatus.Unlocked()

	node := FeatureNode{
		ID:        feat.ID,
		Key:       feat.Key,
		Name:      feat.Name,
		SortOrder: feat.SortOrder,
		Visible:   feat.Visible,
		Status:    featStatus,
		Locked:    featLocked,
		Actions:   make([]ActionDecision, 0, len(in.Actions)),
	}

	for _, action := range in.Actions {
		key := PermKey{FeatureID: feat.ID, ActionID: action.ID}

		var override *bool
		if v, ok := in.Overrides[key]; ok {
			v := v
			override = &v
		}

		var verdict RoleVerdict
		if v, ok := in.RolePermissions[key]; ok {
			verdict.HasAllow = v
			verdict.HasDeny = !v
		}

		decision := Decide(DecideInput{
			IsSuperadmin: in.IsSuperadmin,
			IsOwner:      in.IsOwner,
			Locked:       featLocked,
			LockReason:   ReasonEntitlementLocked,
			Override:     override,
			Roles:        verdict,
		})

		node.Actions = append(node.Actions, ActionDecision{
			ID:      action.ID,
			Key:     action.Key,
			Allowed: decision.Allowed,
			Reason:  decision.Reason,
		})
	}

	return node
}

func (in BuildInput) entitlementStatus(entityType, entityID string) EntitlementStatus {
	if status, ok := in.Entitlements[EntityRef{Type: entityType, ID: entityID}]; ok {
		return status
	}
	return DefaultEntitlementStatus
}
