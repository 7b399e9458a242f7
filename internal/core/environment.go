package core

// Environment represents the deployment environment of the service.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// String returns the string representation of the environment.
func (e Environment) String() string {
	return string(e)
}

// IsProduction reports whether the environment corresponds to production.
func (e Environment) IsProduction() bool {
	return e == Production
}

// ParseEnvironment normalises the provided value into one of the known environments.
// Unknown values fall back to Development.
func ParseEnvironment(v string) Environment {
	switch Environment(v) {
	case Production:
		return Production
	case Staging:
		return Staging
	case Testing:
		return Testing
	default:
		return Development
	}
}

// ExecutionMode describes how a workflow execution was started.
type ExecutionMode string

const (
	ModeManual  ExecutionMode = "manual"
	ModeCLI     ExecutionMode = "cli"
	ModeTrigger ExecutionMode = "trigger"
	ModeTest    ExecutionMode = "test"
)

// String returns the string representation of the mode.
func (m ExecutionMode) String() string {
	return string(m)
}
