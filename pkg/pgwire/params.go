package pgwire

import "github.com/pgshuttle/pgshuttle/pkg/params"

// ParameterStatuses and ParameterStatusDiff are re-exported from pkg/params
// so ProtocolState (and anything that diffs a session's tracked parameters
// against a new snapshot) can use them without a separate import.
type ParameterStatuses = params.ParameterStatuses
type ParameterStatusDiff = params.ParameterStatusDiff

// BaseTrackedParameters and BaseParameterStatuses are re-exported from
// pkg/params for the same reason.
var BaseTrackedParameters = params.BaseTrackedParameters
var BaseParameterStatuses = params.BaseParameterStatuses

// Startup message parameter keys. Distinct from the ParamXxx constants in
// pkg/params, which name asynchronous ParameterStatus keys.
const (
	ParamUser            = "user"
	ParamDatabase        = "database"
	ParamOptions         = "options"
	ParamApplicationName = "application_name"
	ParamReplication     = "replication"
)
