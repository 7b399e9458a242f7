package langfuse

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// IDPrefix starts every deterministic trace and observation id.
const IDPrefix = "wf"

// DeterministicID derives a stable id from the execution coordinates so that
// repeated supply calls for the same node resolve to the same Langfuse object.
func DeterministicID(prefix, workflowID, executionID, nodeName string) string {
	return fmt.Sprintf("%s-%s-%s-%s", prefix, workflowID, executionID,
		base64.RawURLEncoding.EncodeToString([]byte(nodeName)))
}

func newID() string {
	return uuid.NewString()
}
