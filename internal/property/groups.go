package property

var (
	idSpec          = StringSpec("ID", "id", "")
	nameSpec        = StringSpec("Name", "name", "")
	userIDSpec      = StringSpec("UserId", "userId", "")
	inputSpec       = AnySpec("Input", "input")
	outputSpec      = AnySpec("Output", "output")
	sessionIDSpec   = StringSpec("SessionId", "sessionId", "")
	releaseSpec     = StringSpec("Release", "release", "")
	versionSpec     = StringSpec("Version", "version", "")
	metadataSpec    = AnySpec("Metadata", "metadata")
	environmentSpec = StringSpec("Environment", "environment",
		"Environments allow you to organize your traces, observations, and scores from different contexts such as production, staging, or development")
	startTimeSpec = DateTimeSpec("Start Time", "startTime")
	endTimeSpec   = DateTimeSpec("End Time", "endTime")
)

var traceSpecs = []Spec{
	nameSpec,
	userIDSpec,
	inputSpec,
	outputSpec,
	sessionIDSpec,
	releaseSpec,
	versionSpec,
	metadataSpec,
	environmentSpec,
}

var observationSpecs = []Spec{
	nameSpec,
	inputSpec,
	outputSpec,
	versionSpec,
	metadataSpec,
	environmentSpec,
	startTimeSpec,
	endTimeSpec,
}

func withID(specs []Spec) []Spec {
	return append([]Spec{idSpec}, specs...)
}

// Predefined groups for the Langfuse nodes.
var (
	TraceCreate = Group{
		Name:                  "properties",
		Specs:                 withID(traceSpecs),
		AdditionalDescription: "Any field accepted by the trace-create ingestion event.",
	}
	TraceUpdate = Group{
		Name:                  "properties",
		Specs:                 traceSpecs,
		AdditionalDescription: "Any field accepted when updating a trace.",
	}
	ObservationCreate = Group{
		Name:                  "properties",
		Specs:                 withID(observationSpecs),
		AdditionalDescription: "Any field accepted by span-create or generation-create.",
	}
	ObservationUpdate = Group{
		Name:                  "properties",
		Specs:                 observationSpecs,
		AdditionalDescription: "Any field accepted by span-update or generation-update.",
	}
)
