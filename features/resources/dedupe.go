package resources

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// HashIdentityLength is the hash prefix length used as identity. Vendors
// report LoRA and embedding hashes at 10 or 12 characters.
// TODO: verify against the registry whether LoRA AutoV2 hashes at 12
// characters are ever distinct at 10.
const HashIdentityLength = 10

// Key returns the identity of a reference: the 10 character hash prefix,
// then the AIR URN, then (modelId, modelVersionId), then modelVersionId,
// then (name, version).
func (r *Reference) Key() string {
	switch {
	case r.Hash != "":
		hash := strings.ToLower(r.Hash)
		if len(hash) > HashIdentityLength {
			hash = hash[:HashIdentityLength]
		}
		return "hash:" + hash
	case r.AirURN != "":
		return "air:" + r.AirURN
	case r.ModelID != 0 && r.ModelVersionID != 0:
		return fmt.Sprintf("model:%d@%d", r.ModelID, r.ModelVersionID)
	case r.ModelVersionID != 0:
		return fmt.Sprintf("version:%d", r.ModelVersionID)
	}
	return "name:" + strings.ToLower(r.Name) + "@" + strings.ToLower(r.Version)
}

func missing(s string) bool {
	return s == "" || strings.EqualFold(s, TypeUnknown)
}

// Dedupe merges references with equal keys. Groups keep the order their
// key was first seen. Within a group the highest style is the base record.
// Its missing or "Unknown" fields are filled from the others in descending
// style order, and names of the others are kept as aliases.
func Dedupe(refs []*Reference) []*Reference {
	var keys []string
	groups := map[string][]*Reference{}
	for _, ref := range refs {
		if ref == nil {
			continue
		}
		key := ref.Key()
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], ref)
	}
	merged := make([]*Reference, 0, len(keys))
	for _, key := range keys {
		group := slices.Clone(groups[key])
		slices.SortStableFunc(group, func(a, b *Reference) int {
			return cmp.Compare(b.Source, a.Source)
		})
		base := *group[0]
		base.Aliases = slices.Clone(base.Aliases)
		for _, other := range group[1:] {
			base.fill(other)
		}
		merged = append(merged, &base)
	}
	return merged
}

func (r *Reference) fill(other *Reference) {
	fillString(&r.Type, other.Type)
	fillString(&r.Prefix, other.Prefix)
	fillString(&r.Name, other.Name)
	fillString(&r.Version, other.Version)
	fillString(&r.AirURN, other.AirURN)
	fillString(&r.Hash, other.Hash)
	if r.Weight == nil {
		r.Weight = other.Weight
	}
	if r.ModelID == 0 {
		r.ModelID = other.ModelID
	}
	if r.ModelVersionID == 0 {
		r.ModelVersionID = other.ModelVersionID
	}
	for _, alias := range append([]string{other.Name}, other.Aliases...) {
		if alias == "" || strings.EqualFold(alias, r.Name) || strings.EqualFold(alias, TypeUnknown) {
			continue
		}
		if !slices.ContainsFunc(r.Aliases, func(a string) bool { return strings.EqualFold(a, alias) }) {
			r.Aliases = append(r.Aliases, alias)
		}
	}
}

func fillString(target *string, value string) {
	if missing(*target) && !missing(value) {
		*target = value
	}
}
