package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external binary tally relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// Alternatives are tried in order when Command is not found.
	Alternatives []string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Satisfied is true when the binary is available or not required.
func (s Status) Satisfied() bool {
	return s.Available || s.Optional
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		candidates := make([]string, 0, 1+len(req.Alternatives))
		if cmd != "" {
			candidates = append(candidates, cmd)
		}
		candidates = append(candidates, req.Alternatives...)
		if len(candidates) == 0 {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		for _, candidate := range candidates {
			if resolved, err := exec.LookPath(candidate); err == nil {
				status.Command = resolved
				status.Available = true
				break
			}
		}
		if !status.Available {
			if status.Command == "" {
				status.Command = candidates[0]
			}
			status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Satisfied() {
			missing = append(missing, s)
		}
	}
	return missing
}
