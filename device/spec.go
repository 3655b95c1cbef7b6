package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/eagerctx/core"
)

const unset = -1

// Spec is a structured, immutable device descriptor. The zero value is not
// valid; use Empty, Parse or Merge.
type Spec struct {
	job        string
	replica    int
	task       int
	deviceType string
	index      int
}

// Empty is the fully unset device spec. Installing it resets placement.
var Empty = &Spec{replica: unset, task: unset, index: unset}

// NameError reports a malformed device string.
type NameError struct {
	Name   string
	Reason string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("invalid device name %q: %s", e.Name, e.Reason)
}

// Unwrap allows errors.Is(err, core.ErrInvalidArgument).
func (e *NameError) Unwrap() error { return core.ErrInvalidArgument }

// Parse parses a possibly partial device string. The empty string parses to
// an unset spec.
func Parse(name string) (*Spec, error) {
	s := &Spec{replica: unset, task: unset, index: unset}
	for _, part := range strings.Split(name, "/") {
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		key := fields[0]
		switch {
		case len(fields) == 2 && key == "job":
			if fields[1] == "" {
				return nil, &NameError{Name: name, Reason: "empty job name"}
			}
			s.job = fields[1]
		case len(fields) == 2 && key == "replica":
			n, err := parseIndex(name, fields[1])
			if err != nil {
				return nil, err
			}
			s.replica = n
		case len(fields) == 2 && key == "task":
			n, err := parseIndex(name, fields[1])
			if err != nil {
				return nil, err
			}
			s.task = n
		case (len(fields) == 1 || len(fields) == 2) && isShortType(key):
			if s.deviceType != "" {
				return nil, &NameError{Name: name, Reason: "multiple device types"}
			}
			s.deviceType = strings.ToUpper(key)
			if len(fields) == 2 && fields[1] != "*" {
				n, err := parseIndex(name, fields[1])
				if err != nil {
					return nil, err
				}
				s.index = n
			}
		case len(fields) == 3 && key == "device":
			if s.deviceType != "" {
				return nil, &NameError{Name: name, Reason: "multiple device types"}
			}
			if fields[1] == "" {
				return nil, &NameError{Name: name, Reason: "empty device type"}
			}
			s.deviceType = fields[1]
			if fields[2] != "*" {
				n, err := parseIndex(name, fields[2])
				if err != nil {
					return nil, err
				}
				s.index = n
			}
		default:
			return nil, &NameError{Name: name, Reason: fmt.Sprintf("unknown attribute %q", key)}
		}
	}
	return s, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(name string) *Spec {
	s, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return s
}

// Canonical returns the fully qualified form of a device string.
func Canonical(name string) (string, error) {
	s, err := Parse(name)
	if err != nil {
		return "", err
	}
	return s.String(), nil
}

func isShortType(key string) bool {
	u := strings.ToUpper(key)
	return u == "CPU" || u == "GPU"
}

func parseIndex(name, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &NameError{Name: name, Reason: fmt.Sprintf("%q is not a non-negative integer", v)}
	}
	return n, nil
}

// Merge returns a new spec holding base's fields overridden by every field
// that is present in override.
func Merge(base, override *Spec) *Spec {
	out := *base
	if override.job != "" {
		out.job = override.job
	}
	if override.replica != unset {
		out.replica = override.replica
	}
	if override.task != unset {
		out.task = override.task
	}
	if override.deviceType != "" {
		out.deviceType = override.deviceType
	}
	if override.index != unset {
		out.index = override.index
	}
	return &out
}

// Job returns the job name and whether it is set.
func (s *Spec) Job() (string, bool) { return s.job, s.job != "" }

// Replica returns the replica index and whether it is set.
func (s *Spec) Replica() (int, bool) { return s.replica, s.replica != unset }

// Task returns the task index and whether it is set.
func (s *Spec) Task() (int, bool) { return s.task, s.task != unset }

// DeviceType returns the device type and whether it is set.
func (s *Spec) DeviceType() (string, bool) { return s.deviceType, s.deviceType != "" }

// Index returns the device index and whether it is set.
func (s *Spec) Index() (int, bool) { return s.index, s.index != unset }

// IsEmpty reports whether no field is set.
func (s *Spec) IsEmpty() bool { return *s == *Empty }

// Equal reports whether two specs hold the same fields.
func (s *Spec) Equal(o *Spec) bool { return *s == *o }

// String renders the fully qualified device string. Unset fields are
// omitted; a set type with an unset index renders as "*".
func (s *Spec) String() string {
	var b strings.Builder
	if s.job != "" {
		b.WriteString("/job:")
		b.WriteString(s.job)
	}
	if s.replica != unset {
		b.WriteString("/replica:")
		b.WriteString(strconv.Itoa(s.replica))
	}
	if s.task != unset {
		b.WriteString("/task:")
		b.WriteString(strconv.Itoa(s.task))
	}
	if s.deviceType != "" {
		idx := "*"
		if s.index != unset {
			idx = strconv.Itoa(s.index)
		}
		b.WriteString("/device:")
		b.WriteString(s.deviceType)
		b.WriteString(":")
		b.WriteString(idx)
	}
	return b.String()
}
