// Package address models the (worker, job, experiment) addressing triple
// used by every bioreactor control operation.
//
// All backend job-control paths are rendered through a single template so
// that path-segment drift (the "units" vs "workers" class of bug) cannot
// creep in per call site.
package address

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxFieldLength bounds each address field. Longer values are rejected to
// keep constructed API URLs sane.
const MaxFieldLength = 64

// fieldPattern is the allowed shape for worker, job, and experiment names.
// Anything outside this set could alter the constructed URL path.
var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Address identifies a target unit, job type, and experiment context.
//
// An Address is only constructed through Validate, so holders can assume
// all three fields are safe to interpolate into a URL path.
type Address struct {
	Worker     string `json:"worker"`
	JobName    string `json:"job_name"`
	Experiment string `json:"experiment"`
}

// InvalidAddressError reports a field that failed validation.
type InvalidAddressError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address: %s %q: %s", e.Field, e.Value, e.Reason)
}

// Validate checks and normalizes an addressing triple.
//
// It is a pure function: no side effects, deterministic for all inputs.
// Returns an *InvalidAddressError when any field is empty, contains
// characters outside [A-Za-z0-9_-], or exceeds MaxFieldLength.
func Validate(worker, jobName, experiment string) (Address, error) {
	for _, f := range []struct {
		name  string
		value string
	}{
		{"worker", worker},
		{"job_name", jobName},
		{"experiment", experiment},
	} {
		if err := checkField(f.name, f.value); err != nil {
			return Address{}, err
		}
	}
	return Address{Worker: worker, JobName: jobName, Experiment: experiment}, nil
}

func checkField(name, value string) error {
	if value == "" {
		return &InvalidAddressError{Field: name, Value: value, Reason: "must not be empty"}
	}
	if len(value) > MaxFieldLength {
		return &InvalidAddressError{
			Field:  name,
			Value:  value,
			Reason: fmt.Sprintf("exceeds %d characters", MaxFieldLength),
		}
	}
	if !fieldPattern.MatchString(value) {
		return &InvalidAddressError{
			Field:  name,
			Value:  value,
			Reason: "contains characters outside [A-Za-z0-9_-]",
		}
	}
	return nil
}

// Action is a job-control action on the backend API.
type Action string

const (
	ActionRun    Action = "run"
	ActionStop   Action = "stop"
	ActionUpdate Action = "update"
)

// jobPathTemplate is the one place the job-control path shape is written
// down. Placeholders are filled from a validated Address, never from raw
// caller input.
const jobPathTemplate = "/units/{unit}/jobs/{action}/job_name/{job}/experiments/{experiment}"

// JobPath renders the backend path for a job-control action against addr.
//
// Every dispatcher operation goes through this function; there is
// deliberately no second way to build a job-control path.
func JobPath(action Action, addr Address) string {
	r := strings.NewReplacer(
		"{unit}", addr.Worker,
		"{action}", string(action),
		"{job}", addr.JobName,
		"{experiment}", addr.Experiment,
	)
	return r.Replace(jobPathTemplate)
}
