package civitai

// ModelVersion is a "model-versions" record.
type ModelVersion struct {
	ID           int64          `json:"id"`
	ModelID      int64          `json:"modelId"`
	Name         string         `json:"name"`
	BaseModel    string         `json:"baseModel"`
	TrainedWords []string       `json:"trainedWords"`
	DownloadURL  string         `json:"downloadUrl"`
	Files        []File         `json:"files"`
	Images       []Image        `json:"images"`
	Model        *ModelSummary  `json:"model"`
	Stats        map[string]any `json:"stats,omitempty"`
}

type ModelSummary struct {
	Name string `json:"name"`
	Type string `json:"type"`
	NSFW bool   `json:"nsfw"`
}

type File struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	SizeKB      float64           `json:"sizeKB"`
	Primary     bool              `json:"primary"`
	Hashes      map[string]string `json:"hashes"`
	DownloadURL string            `json:"downloadUrl"`
}

type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	// int in current API, string ("None", "Soft"...) in older responses
	NSFWLevel any `json:"nsfwLevel,omitempty"`
}

// Model is a "models" record.
type Model struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	NSFW          bool           `json:"nsfw"`
	Tags          []string       `json:"tags"`
	Creator       *Creator       `json:"creator"`
	ModelVersions []ModelVersion `json:"modelVersions"`
}

type Creator struct {
	Username string `json:"username"`
}

// PrimaryFile returns the primary file of the version, or the first one.
func (v *ModelVersion) PrimaryFile() *File {
	for i := range v.Files {
		if v.Files[i].Primary {
			return &v.Files[i]
		}
	}
	if len(v.Files) > 0 {
		return &v.Files[0]
	}
	return nil
}
