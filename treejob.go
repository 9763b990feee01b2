package rootranger

// Action identifies which JobExecutor operation a TreeJob runs.
type Action int

const (
	// ActionCopy runs JobExecutor.Copy (§4.5.1).
	ActionCopy Action = iota
	// ActionFlatten runs JobExecutor.Flatten (§4.5.2).
	ActionFlatten
	// ActionBPV runs JobExecutor.BPV (§4.5.3).
	ActionBPV
)

func (a Action) String() string {
	switch a {
	case ActionCopy:
		return "copy"
	case ActionFlatten:
		return "flatten"
	case ActionBPV:
		return "bpv"
	default:
		return "unknown"
	}
}

// TreeJob is one queued tree-producing operation. BranchSelection chooses
// which leaves of the input tree survive into the output tree; SelSelection
// is the operation-specific second selection (flat_branch_selection for
// ActionFlatten, bpv_branch_selection for ActionBPV) and is unused by
// ActionCopy.
type TreeJob struct {
	Action          Action
	TreeIn          string
	TreeOut         string
	BranchSelection string
	SelSelection    string
	Cut             string
}
