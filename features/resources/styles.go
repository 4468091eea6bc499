package resources

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sagan/aimeta/util"
)

var (
	modelHashRegexp = regexp.MustCompile(`(?i)\bModel hash:\s*([0-9a-f]{10,12})\b`)
	modelNameRegexp = regexp.MustCompile(`(?i)(?:^|[,\n]\s*)Model:\s*([^,\n]+)`)
	hashesRegexp    = regexp.MustCompile(`(?i)(?:^|[,\n]\s*)Hashes:\s*\{`)
	loraListRegexp  = regexp.MustCompile(`(?i)\bLora hashes:\s*(?:"([^"]*)"|([^,\n]*))`)
	tiListRegexp    = regexp.MustCompile(`(?i)\bTI hashes:\s*(?:"([^"]*)"|([^,\n]*))`)
	civitaiRegexp   = regexp.MustCompile(`(?i)\bCivitai resources:\s*\[`)
	hexRegexp       = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

// ExtractModelHash reads the "Model hash: <hex>, Model: <name>" convention.
func ExtractModelHash(text string) []*Reference {
	m := modelHashRegexp.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return []*Reference{{
		Type:   TypeCheckpoint,
		Prefix: "model",
		Hash:   strings.ToLower(m[1]),
		Name:   modelName(text),
		Source: StyleModelHash,
	}}
}

func modelName(text string) string {
	if m := modelNameRegexp.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ExtractHashes reads the `Hashes: {"prefix:name": "hash"}` JSON map.
// Entries keep their order in the text.
func ExtractHashes(text string) []*Reference {
	loc := hashesRegexp.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	raw := balanced(text, loc[1]-1)
	if raw == "" {
		log.Debugf("unterminated Hashes map")
		return nil
	}
	keys, err := util.ObjectKeys([]byte(raw))
	if err != nil {
		log.Debugf("invalid Hashes map: %v", err)
		return nil
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	var refs []*Reference
	for _, key := range keys {
		hash := strings.TrimSpace(util.ToString(values[key]))
		if hash == "" {
			continue
		}
		prefix, name, _ := strings.Cut(key, ":")
		prefix = strings.ToLower(strings.TrimSpace(prefix))
		name = strings.TrimSpace(name)
		if prefix == "model" && name == "" {
			name = modelName(text)
		}
		if prefix == "lora" {
			name = baseName(name)
		}
		refs = append(refs, &Reference{
			Type:   TypeOf(prefix),
			Prefix: prefix,
			Hash:   strings.ToLower(hash),
			Name:   name,
			Source: StyleHashes,
		})
	}
	return refs
}

// ExtractHashLists reads `Lora hashes: "name: hash, ..."` and
// `TI hashes: "name: hash, ..."`. The TI list is deduplicated by hash.
func ExtractHashLists(text string) []*Reference {
	var refs []*Reference
	if m := loraListRegexp.FindStringSubmatch(text); m != nil {
		for _, pair := range hashPairs(m[1] + m[2]) {
			refs = append(refs, &Reference{
				Type:   TypeLORA,
				Prefix: "lora",
				Hash:   pair[1],
				Name:   baseName(pair[0]),
				Source: StyleHashLists,
			})
		}
	}
	if m := tiListRegexp.FindStringSubmatch(text); m != nil {
		seen := map[string]bool{}
		for _, pair := range hashPairs(m[1] + m[2]) {
			if seen[pair[1]] {
				continue
			}
			seen[pair[1]] = true
			refs = append(refs, &Reference{
				Type:   TypeTextualInversion,
				Prefix: "embed",
				Hash:   pair[1],
				Name:   pair[0],
				Source: StyleHashLists,
			})
		}
	}
	return refs
}

// hashPairs splits "name: hash, name2: hash2" into [name, hash] pairs.
// Names may contain colons, the hash is after the last one.
func hashPairs(list string) [][2]string {
	var pairs [][2]string
	for item := range strings.SplitSeq(list, ",") {
		i := strings.LastIndex(item, ":")
		if i < 0 {
			continue
		}
		name := strings.TrimSpace(item[:i])
		hash := strings.ToLower(strings.TrimSpace(item[i+1:]))
		if hash == "" || !hexRegexp.MatchString(hash) {
			continue
		}
		pairs = append(pairs, [2]string{name, hash})
	}
	return pairs
}

type civitaiResource struct {
	Type             string      `json:"type"`
	Weight           *float64    `json:"weight"`
	ModelID          json.Number `json:"modelId"`
	ModelVersionID   json.Number `json:"modelVersionId"`
	ModelName        string      `json:"modelName"`
	ModelVersionName string      `json:"modelVersionName"`
	Hash             string      `json:"hash"`
	AIR              string      `json:"air"`
	URN              string      `json:"urn"`
}

// ExtractCivitaiResources reads the `Civitai resources: [...]` array.
// An element's AIR URN takes precedence over its own type and ids.
func ExtractCivitaiResources(text string) []*Reference {
	loc := civitaiRegexp.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	raw := balanced(text, loc[1]-1)
	if raw == "" {
		log.Debugf("unterminated Civitai resources array")
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		log.Debugf("invalid Civitai resources array: %v", err)
		return nil
	}
	var refs []*Reference
	for _, item := range items {
		var res civitaiResource
		decoder := json.NewDecoder(bytes.NewReader(item))
		if err := decoder.Decode(&res); err != nil {
			log.Debugf("skip Civitai resource %s: %v", item, err)
			continue
		}
		ref := &Reference{
			Type:    TypeOf(res.Type),
			Prefix:  strings.ToLower(res.Type),
			Hash:    strings.ToLower(strings.TrimSpace(res.Hash)),
			Name:    strings.TrimSpace(res.ModelName),
			Version: strings.TrimSpace(res.ModelVersionName),
			Weight:  res.Weight,
			Source:  StyleCivitai,
		}
		ref.ModelID, _ = strconv.ParseInt(res.ModelID.String(), 10, 64)
		ref.ModelVersionID, _ = strconv.ParseInt(res.ModelVersionID.String(), 10, 64)
		urn := res.AIR
		if urn == "" {
			urn = res.URN
		}
		if air, err := ParseAIR(urn); err == nil {
			ref.AirURN = air.String()
			ref.Type = TypeOf(air.Type)
			ref.Prefix = strings.ToLower(air.Type)
			ref.ModelID = air.ModelID
			if air.VersionID != 0 {
				ref.ModelVersionID = air.VersionID
			}
		}
		refs = append(refs, ref)
	}
	return refs
}

// balanced returns the JSON value opening at text[start] up to its matching
// close bracket, or "" if it never closes.
func balanced(text string, start int) string {
	if start < 0 || start >= len(text) {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
