// Package cluster implements the cluster LaunchStrategy and pod
// supervisor described in spec.md §4.3-§4.4: scheduling a worker pod
// per run and reconciling its eventual outcome back into durable
// state via k8s.io/client-go's typed clientset, the same approach the
// teacher uses in internal/kubernetes rather than controller-runtime.
package cluster

import "strconv"

// Labels applied to every pod and service this package creates.
const (
	LabelManaged = "reproserver.io/managed"
	LabelRunID   = "reproserver.io/run-id"
)

func runIDLabel(runID int64) string {
	return strconv.FormatInt(runID, 10)
}

func parseRunIDLabel(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
