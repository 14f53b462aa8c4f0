package xmr

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/go-logfmt/logfmt"
)

type metadata map[string]string

// Name identifies the process stream a chart belongs to.  By convention the
// name describes what is measured, such as deploy_lead_time or
// defects_per_batch.  Optional metadata distinguishes the same measurement
// taken in different places.  Names are marshalled to a string using a
// modified logfmt, e.g. deploy_lead_time[env=prod team=core]
type Name struct {
	name string
	md   metadata
}

// String marshals the name to a string representation, such as deploy_lead_time[env=prod team=core]
func (n Name) String() string {
	md, err := MarshalText(n.md)
	if err != nil {
		md = []byte{}
	}
	return n.name + string(md)
}

// NewName returns a new name with the associated metadata
func NewName(name string, md map[string]string) Name {
	return Name{name: name, md: md}
}

// ParseName parses the string form back into a Name.  The tag section is
// optional; when present it must be enclosed in brackets, with key=value
// pairs and @annotations separated by spaces.
func ParseName(s string) (Name, error) {
	s = strings.TrimSpace(s)
	open := strings.Index(s, "[")
	switch {
	case s == "":
		return Name{}, fmt.Errorf("series name cannot be empty")
	case open < 0:
		return NewName(s, nil), nil
	case open == 0:
		return Name{}, fmt.Errorf("series name cannot be empty: %s", s)
	case !strings.HasSuffix(s, "]"):
		return Name{}, fmt.Errorf("unterminated tag section in series name: %s", s)
	}

	md := make(map[string]string)
	d := logfmt.NewDecoder(strings.NewReader(s[open+1 : len(s)-1]))
	for d.ScanRecord() {
		for d.ScanKeyval() {
			key := string(d.Key())
			switch {
			case strings.HasPrefix(key, "@"):
				md[key[1:]] = ""
			default:
				md[key] = string(d.Value())
			}
		}
	}
	if err := d.Err(); err != nil {
		return Name{}, fmt.Errorf("could not parse tags in series name %s: %v", s, err)
	}
	return NewName(s[:open], md), nil
}

// AddAnnotation adds additional annotations
func (n Name) AddAnnotation(ann ...string) {
	for _, a := range ann {
		n.md[a] = ""
	}
}

// AddMetadata adds additional metadata upserted into the metadata map.
func (n Name) AddMetadata(md map[string]string) {
	for k, v := range md {
		n.md[k] = v
	}
}

// MarshalText will return the metadata encoded as a modified logfmt representation.  Metadata opens with a [
// then is followed by (key, value) pairs k=v in sorted key order, then finally by annotations starting with @ in
// sorted order.  Close with a ].  Example: [env=prod team=core @manual]
func MarshalText(m metadata) ([]byte, error) {
	if m == nil {
		return []byte{}, nil
	}
	keys := make([]string, 0, len(m))
	ann := make([]string, 0, len(m))
	for k, v := range m {
		switch v {
		case "":
			ann = append(ann, fmt.Sprintf("@%s", k))
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	sort.Strings(ann)

	var b bytes.Buffer
	b.Write([]byte("["))
	e := logfmt.NewEncoder(&b)
	for _, k := range keys {
		if err := e.EncodeKeyval(k, m[k]); err != nil {
			return nil, fmt.Errorf("failed to encode %s=%s: %v", k, m[k], err)
		}
	}
	if len(keys) > 0 && len(ann) > 0 {
		b.Write([]byte(" "))
	}
	if len(ann) > 0 {
		b.Write([]byte(strings.Join(ann, " ")))
	}
	b.Write([]byte("]"))
	return b.Bytes(), nil
}
