package tagging

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// OutsideTag is the tag string marking a token outside of any entity.
const OutsideTag = "O"

// LabelMapping associates tag strings (e.g. "B-PER") with integer tag ids.
//
// It is built once by the caller and never modified by the scorers: each scorer
// derives its own inverse view (see LabelMapping.Inverse).
type LabelMapping map[string]int

// NewLabelMapping builds a LabelMapping from a list of tag strings, using the
// position in the list as the id. Tag strings are NFC-normalized, and a tag
// listed twice fails with a *LabelMappingError.
func NewLabelMapping(tags ...string) (LabelMapping, error) {
	m := make(LabelMapping, len(tags))
	for id, tag := range tags {
		if err := m.add(tag, id); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNewLabelMapping is like NewLabelMapping, but panics on error.
func MustNewLabelMapping(tags ...string) LabelMapping {
	m, err := NewLabelMapping(tags...)
	if err != nil {
		panic(err)
	}
	return m
}

// add inserts the NFC-normalized tag with the given id.
func (m LabelMapping) add(tag string, id int) error {
	tag = norm.NFC.String(tag)
	if prev, found := m[tag]; found {
		return &LabelMappingError{ID: id, Reason: fmt.Sprintf("tag %q already has id %d", tag, prev)}
	}
	m[tag] = id
	return nil
}

// LoadLabelMapping reads a JSON label mapping file.
//
// Two layouts are accepted: an object mapping tag string to id
// (`{"O": 0, "B-PER": 1}`) or a list of tags where the position is the id
// (`["O", "B-PER"]`).
func LoadLabelMapping(path string) (LabelMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read label mapping %s", path)
	}

	var asList []string
	if err := json.Unmarshal(data, &asList); err == nil {
		m, err := NewLabelMapping(asList...)
		if err != nil {
			return nil, errors.WithMessagef(err, "label mapping %s", path)
		}
		return m, nil
	}

	var asMap map[string]int
	if err := json.Unmarshal(data, &asMap); err != nil {
		return nil, errors.Wrapf(err, "failed to parse label mapping %s", path)
	}
	m := make(LabelMapping, len(asMap))
	for tag, id := range asMap {
		if err := m.add(tag, id); err != nil {
			return nil, errors.WithMessagef(err, "label mapping %s", path)
		}
	}
	return m, nil
}

// Inverse returns the id->tag view of the mapping.
// It fails with a *LabelMappingError if two tags share the same id.
func (m LabelMapping) Inverse() (InverseLabelMapping, error) {
	inv := make(InverseLabelMapping, len(m))
	for tag, id := range m {
		if prev, found := inv[id]; found {
			return nil, &LabelMappingError{ID: id, Reason: "shared by tags " + prev + " and " + tag}
		}
		inv[id] = tag
	}
	return inv, nil
}

// Tags returns the tag strings ordered by id.
func (m LabelMapping) Tags() []string {
	tags := make([]string, 0, len(m))
	for tag := range m {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return m[tags[i]] < m[tags[j]] })
	return tags
}

// InverseLabelMapping maps tag ids back to tag strings.
type InverseLabelMapping map[int]string

// Tag returns the tag string for id, or a *LabelMappingError.
func (inv InverseLabelMapping) Tag(id int) (string, error) {
	tag, found := inv[id]
	if !found {
		return "", &LabelMappingError{ID: id}
	}
	return tag, nil
}

// Tags converts a sequence of tag ids into tag strings.
func (inv InverseLabelMapping) Tags(ids []int) ([]string, error) {
	tags := make([]string, len(ids))
	for i, id := range ids {
		tag, err := inv.Tag(id)
		if err != nil {
			return nil, err
		}
		tags[i] = tag
	}
	return tags, nil
}
