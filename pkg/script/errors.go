package script

import "errors"

// ErrNoSource is returned when neither an inline script nor a script file is configured.
var ErrNoSource = errors.New("no script configured: set inject.script or inject.script_file")
