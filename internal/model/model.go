// Package model holds the core entities of the execution subsystem:
// experiments (bundles), uploads, runs, log lines and output files.
//
// Storage encoding lives in internal/store; this package only carries the
// semantic shape shared by the connector, the container driver and the
// orchestrator.
package model

import (
	"strings"
	"time"
)

// Parameter describes one bundle parameter.
//
// Workdir, Environment, UID and GID are recorded at trace time for
// cmdline_<index> parameters: the working directory, environment and
// uid/gid the driver applies when it runs that command (spec §4.2
// step 7, via the staged setuid helper). They're meaningless for any
// other parameter and left zero.
type Parameter struct {
	Name        string  `json:"name"`
	Required    bool    `json:"required"`
	Default     *string `json:"default,omitempty"`
	Description string  `json:"description,omitempty"`

	Workdir     string            `json:"workdir,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	UID         *int              `json:"uid,omitempty"`
	GID         *int              `json:"gid,omitempty"`
}

// Path describes one path recorded in a bundle, either an input, an
// output, or neither (in which case it is ignored by the core).
type Path struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	IsInput  bool   `json:"is_input"`
	IsOutput bool   `json:"is_output"`
}

// Experiment is an immutable bundle, identified by the content hash of
// its bytes.
type Experiment struct {
	Hash       string      `json:"hash"`
	Parameters []Parameter `json:"parameters"`
	Paths      []Path      `json:"paths"`
}

// Parameter returns the parameter named name, or nil.
func (e Experiment) Parameter(name string) *Parameter {
	for i := range e.Parameters {
		if e.Parameters[i].Name == name {
			return &e.Parameters[i]
		}
	}
	return nil
}

// Path returns the bundle path named name, or nil.
func (e Experiment) Path(name string) *Path {
	for i := range e.Paths {
		if e.Paths[i].Name == name {
			return &e.Paths[i]
		}
	}
	return nil
}

// Upload is a submission of a bundle by a user.
type Upload struct {
	ID               int64     `json:"id"`
	ExperimentHash   string    `json:"experiment_hash"`
	OriginalFilename string    `json:"original_filename"`
	SubmitterAddress string    `json:"submitter_address"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// ParameterValue is one submitted (name -> value) pair.
type ParameterValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// InputFile is one submitted input, identified by the bundle path name
// it fills in.
type InputFile struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// ExposedPort is a port the run wants reachable from outside the
// container while it runs.
type ExposedPort struct {
	Port   int    `json:"port"`
	Scheme string `json:"scheme"`
}

// OutputFile is one file successfully copied out of the container for
// a path flagged is_output.
type OutputFile struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// LogLine is one append-only line in a run's log.
type LogLine struct {
	ID   int64     `json:"id"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Run is the core entity: a single execution of a bundle with specific
// parameter values and inputs.
type Run struct {
	ID               int64     `json:"id"`
	ExperimentHash   string    `json:"experiment_hash"`
	UploadID         int64     `json:"upload_id"`
	SubmittedAt      time.Time `json:"submitted_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	DoneAt           *time.Time `json:"done_at,omitempty"`
	ProgressPercent  int       `json:"progress_percent"`
	ProgressText     string    `json:"progress_text"`
	ParameterValues  []ParameterValue `json:"parameter_values"`
	InputFiles       []InputFile      `json:"input_files"`
	ExposedPorts     []ExposedPort    `json:"exposed_ports"`
	ExtraConfig      []byte           `json:"extra_config,omitempty"`
}

// Failed reports whether the run's log contains a terminal error line.
// The core never stores a separate error column (spec.md §9 Open
// Questions: follow the recent behaviour, log-line only).
func (r Run) Failed(lines []LogLine) bool {
	for _, l := range lines {
		if strings.HasPrefix(l.Text, errorLinePrefix) {
			return true
		}
	}
	return false
}

const errorLinePrefix = "ERROR: "

// FormatErrorLine renders an error as a terminal log line.
func FormatErrorLine(msg string) string {
	return errorLinePrefix + msg
}
