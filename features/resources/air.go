package resources

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// AIR is a parsed "urn:air:{ecosystem}:{type}:{source}:{id}@{version}".
type AIR struct {
	Ecosystem string `json:"ecosystem"`
	Type      string `json:"type"`
	Source    string `json:"source"`
	ModelID   int64  `json:"model_id"`
	VersionID int64  `json:"version_id,omitempty"`
}

var airRegexp = regexp.MustCompile(`urn:air:([\w.-]+):([\w.-]+):([\w.-]+):(\d+)(?:@(\d+))?`)

// ParseAIR parses the first AIR URN found in s.
func ParseAIR(s string) (*AIR, error) {
	m := airRegexp.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("no AIR URN in %q", s)
	}
	air := &AIR{Ecosystem: m[1], Type: m[2], Source: m[3]}
	var err error
	if air.ModelID, err = strconv.ParseInt(m[4], 10, 64); err != nil {
		return nil, fmt.Errorf("AIR model id: %w", err)
	}
	if m[5] != "" {
		if air.VersionID, err = strconv.ParseInt(m[5], 10, 64); err != nil {
			return nil, fmt.Errorf("AIR version id: %w", err)
		}
	}
	return air, nil
}

func (a *AIR) String() string {
	s := fmt.Sprintf("urn:air:%s:%s:%s:%d", a.Ecosystem, a.Type, a.Source, a.ModelID)
	if a.VersionID != 0 {
		s += fmt.Sprintf("@%d", a.VersionID)
	}
	return s
}

// ParseReference parses a reference given on the command line:
// an AIR URN, "model:{id}[@{versionId}]", "version:{versionId}" or a hex
// file hash. The type is Unknown unless the URN names it.
func ParseReference(s string) (*Reference, error) {
	s = strings.TrimSpace(s)
	ref := &Reference{Type: TypeUnknown, Source: StyleCivitai}
	switch {
	case strings.HasPrefix(s, "urn:air:"):
		air, err := ParseAIR(s)
		if err != nil {
			return nil, err
		}
		ref.AirURN = air.String()
		ref.Type = TypeOf(air.Type)
		ref.Prefix = strings.ToLower(air.Type)
		ref.ModelID = air.ModelID
		ref.ModelVersionID = air.VersionID
	case strings.HasPrefix(s, "model:"):
		id, version, _ := strings.Cut(strings.TrimPrefix(s, "model:"), "@")
		var err error
		if ref.ModelID, err = strconv.ParseInt(id, 10, 64); err != nil || ref.ModelID <= 0 {
			return nil, fmt.Errorf("invalid model id in %q", s)
		}
		if version != "" {
			if ref.ModelVersionID, err = strconv.ParseInt(version, 10, 64); err != nil || ref.ModelVersionID <= 0 {
				return nil, fmt.Errorf("invalid version id in %q", s)
			}
		}
	case strings.HasPrefix(s, "version:"):
		var err error
		if ref.ModelVersionID, err = strconv.ParseInt(strings.TrimPrefix(s, "version:"), 10, 64); err != nil ||
			ref.ModelVersionID <= 0 {
			return nil, fmt.Errorf("invalid version id in %q", s)
		}
	case hexRegexp.MatchString(s):
		ref.Hash = strings.ToLower(s)
	default:
		return nil, fmt.Errorf("unrecognized reference %q", s)
	}
	return ref, nil
}
