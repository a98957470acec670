package iam

// PermKey addresses one (feature, action) pair in role and override maps.
type PermKey struct {
	FeatureID string
	ActionID  string
}

// RoleVerdict is the merged opinion of all of a user's roles on one
// (feature, action) pair. Deny wins across roles; absence of any row means
// the roles have no opinion.
type RoleVerdict struct {
	HasAllow bool
	HasDeny  bool
}

// DecideInput carries everything the precedence chain needs to resolve one
// (feature, action) pair for one user.
type DecideInput struct {
	IsSuperadmin bool
	IsOwner      bool

	// Locked means the feature, or any of its ancestors, carries a
	// non-unlocked entitlement status.
	Locked bool
	// LockReason is the reason reported when Locked forces a denial.
	LockReason string

	// Override is the user-specific decision, nil when no override exists.
	Override *bool

	Roles RoleVerdict
}

// Decide resolves one permission through the fixed precedence chain:
// superadmin, then lock state, then owner, then user override, then roles
// with deny winning, then default deny.
func Decide(in DecideInput) Decision {
	if in.IsSuperadmin {
		return Decision{Allowed: true, Locked: false, Reason: ReasonSuperadmin}
	}

	if in.Locked {
		reason := in.LockReason
		if reason == "" {
			reason = ReasonLocked
		}
		return Decision{Allowed: false, Locked: true, Reason: reason}
	}

	if in.IsOwner {
		return Decision{Allowed: true, Reason: ReasonOwner}
	}

	if in.Override != nil {
		if *in.Override {
			return Decision{Allowed: true, Reason: ReasonUserAllow}
		}
		return Decision{Allowed: false, Reason: ReasonUserDeny}
	}

	if in.Roles.HasDeny {
		return Decision{Allowed: false, Reason: ReasonRoleDeny}
	}
	if in.Roles.HasAllow {
		return Decision{Allowed: true, Reason: ReasonRoleAllow}
	}

	return Decision{Allowed: false, Reason: ReasonNoRole}
}
