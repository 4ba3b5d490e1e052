package fix

// deriveWorkspace computes the lifecycle status and cloud-connected flag
// from the workspace's subscription state and cloud-account facts. Both
// are recomputed from scratch on every hydration.
func deriveWorkspace(w *Workspace) {
	w.CloudAccountConnected = false
	for _, account := range w.CloudAccounts {
		if account.Connected() {
			w.CloudAccountConnected = true
			break
		}
	}

	switch {
	case w.PaymentOnHoldSince != nil:
		w.Status = StatusUnsubscribed
	case w.SubscriptionID != nil:
		w.Status = StatusSubscribed
	case anyAccountScanned(w.CloudAccounts):
		w.Status = StatusCollected
	case anyAccountConfigured(w.CloudAccounts):
		w.Status = StatusConfigured
	default:
		w.Status = StatusCreated
	}
}

func anyAccountScanned(accounts []*CloudAccount) bool {
	for _, account := range accounts {
		if account.LastScanStartedAt != nil || account.LastScanResourcesScanned > 0 {
			return true
		}
	}
	return false
}

func anyAccountConfigured(accounts []*CloudAccount) bool {
	for _, account := range accounts {
		if account.IsConfigured {
			return true
		}
	}
	return false
}

// deriveUser fills the five summary fields mirrored to the destination.
// They are only meaningful for users holding an elevated role somewhere;
// everyone else keeps explicit negative/empty defaults.
func deriveUser(u *User, snapshot *Snapshot) {
	u.EmailNotificationsDisabled = false
	u.CloudAccountConnected = false
	u.MainUser = false
	u.BestWorkspaceName = ""
	u.BestWorkspaceSubscribed = false

	best := bestWorkspace(u, snapshot)
	if best == nil {
		return
	}

	u.EmailNotificationsDisabled = u.notificationsEnabled != nil && !*u.notificationsEnabled
	for _, workspaceID := range u.WorkspaceIDs {
		workspace, ok := snapshot.Workspace(workspaceID)
		if ok && workspace.CloudAccountConnected {
			u.CloudAccountConnected = true
			break
		}
	}
	for _, workspaceID := range u.WorkspaceIDs {
		workspace, ok := snapshot.Workspace(workspaceID)
		if ok && workspace.OwnerID != nil && *workspace.OwnerID == u.ID {
			u.MainUser = true
			break
		}
	}
	u.BestWorkspaceName = best.Name
	u.BestWorkspaceSubscribed = best.SubscriptionID != nil
}

// bestWorkspace selects, among the user's elevated-role workspaces, the
// one most representative of the account. The three overrides run in
// sequence and each later check only fires when the earlier one did not;
// this exact precedence is business-sensitive and must not be collapsed
// into a single comparator.
func bestWorkspace(u *User, snapshot *Snapshot) *Workspace {
	var best *Workspace
	for _, workspaceID := range u.WorkspaceIDs {
		workspace, ok := snapshot.Workspace(workspaceID)
		if !ok {
			continue
		}
		if !u.Roles[workspaceID].Elevated() {
			continue
		}
		if best == nil {
			best = workspace
			continue
		}
		if workspace.CloudAccountConnected && !best.CloudAccountConnected {
			best = workspace
			continue
		}
		if anyAccountConfigured(workspace.CloudAccounts) && !anyAccountConfigured(best.CloudAccounts) {
			best = workspace
			continue
		}
		if totalScannedResources(workspace) > totalScannedResources(best) {
			best = workspace
		}
	}
	return best
}

func totalScannedResources(w *Workspace) int64 {
	var total int64
	for _, account := range w.CloudAccounts {
		total += account.LastScanResourcesScanned
	}
	return total
}
