package rbac

const (
	PermTestView       = "test:view"
	PermTestCreate     = "test:create"
	PermAttemptCreate  = "attempt:create"
	PermAttemptSave    = "attempt:save"
	PermAttemptSubmit  = "attempt:submit"
	PermAttemptViewOwn = "attempt:view-own"
	PermAttemptViewAll = "attempt:view-all"
	PermCheckpointSave = "checkpoint:save"
	PermCheckpointView = "checkpoint:view"
	PermNoteWrite      = "note:write"
	PermNoteView       = "note:view"
	PermAssetUpload    = "asset:upload"
	PermEventView      = "event:view"
)

// DefaultPolicy is what the gateway enforces. Guests log in as candidates
// and only ever see their own attempts.
var DefaultPolicy = Policy{
	"candidate": {
		PermTestView,
		PermAttemptCreate,
		PermAttemptSave,
		PermAttemptSubmit,
		PermAttemptViewOwn,
		"checkpoint:*",
		"note:*",
	},
	"admin": {"*"},
}
