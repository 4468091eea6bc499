package civitai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"slices"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sagan/aimeta/features/resources"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultConcurrency = 4
	// truncated length of hashes tried when a 12 character hash has no match
	shortHashLength = 10
)

var errNoIdentity = errors.New("reference has no hash or registry id")

// ResolvedModel is a resource reference resolved against the registry, or a
// fallback record with Resolved false carrying what the reference knew.
type ResolvedModel struct {
	Key            string   `json:"key"`
	Resolved       bool     `json:"resolved"`
	Type           string   `json:"type"`
	DisplayType    string   `json:"display_type"`
	Hash           string   `json:"hash,omitempty"`
	Name           string   `json:"name"`
	Version        string   `json:"version,omitempty"`
	BaseModel      string   `json:"base_model,omitempty"`
	TrainedWords   []string `json:"trained_words,omitempty"`
	DownloadURL    string   `json:"download_url,omitempty"`
	FileSizeMB     *float64 `json:"file_size_mb,omitempty"`
	URL            string   `json:"url"`
	Images         []string `json:"images,omitempty"`
	ModelID        int64    `json:"model_id,omitempty"`
	ModelVersionID int64    `json:"model_version_id,omitempty"`
	Weight         *float64 `json:"weight,omitempty"`
	Aliases        []string `json:"aliases,omitempty"`
	Error          string   `json:"error,omitempty"`
}

type Resolver struct {
	Registry    Registry
	SiteURL     string        // web root used for model and search links
	Timeout     time.Duration // per reference, 0 means none
	Concurrency int           // max in-flight references, <= 0 means unlimited
}

func NewResolver(client *Client, timeout time.Duration, concurrency int) *Resolver {
	return &Resolver{
		Registry:    client,
		SiteURL:     client.SiteURL(),
		Timeout:     timeout,
		Concurrency: concurrency,
	}
}

// ResolveAll resolves every reference concurrently and waits for all of
// them. Failed lookups become fallback records. The result keeps the order
// of refs; references resolving to the same model version are merged.
func (r *Resolver) ResolveAll(ctx context.Context, refs []*resources.Reference) []*ResolvedModel {
	results := make([]*ResolvedModel, len(refs))
	var g errgroup.Group
	if r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}
	for i, ref := range refs {
		g.Go(func() error {
			results[i] = r.Resolve(ctx, ref)
			return nil
		})
	}
	g.Wait()
	return mergeResolved(results)
}

// Resolve looks up one reference. In order, first success wins:
// (modelId, modelVersionId) fetched in parallel, hash (12 character hashes
// also tried at 10), modelVersionId alone. Otherwise a fallback record with
// a registry search link is returned.
func (r *Resolver) Resolve(ctx context.Context, ref *resources.Reference) *ResolvedModel {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	version, model, err := r.lookup(ctx, ref)
	if err != nil {
		log.Debugf("resource %s unresolved: %v", ref.Key(), err)
		fallback := r.fallback(ref)
		fallback.Error = err.Error()
		return fallback
	}
	return r.resolved(ref, version, model)
}

func (r *Resolver) lookup(ctx context.Context, ref *resources.Reference) (*ModelVersion, *Model, error) {
	var errs []error
	if ref.ModelID != 0 && ref.ModelVersionID != 0 {
		var version *ModelVersion
		var model *Model
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			version, err = r.Registry.ModelVersion(gctx, ref.ModelVersionID)
			return err
		})
		g.Go(func() (err error) {
			model, err = r.Registry.Model(gctx, ref.ModelID)
			return err
		})
		err := g.Wait()
		if err == nil {
			return version, model, nil
		}
		errs = append(errs, fmt.Errorf("ids %d@%d: %w", ref.ModelID, ref.ModelVersionID, err))
	}
	if ref.Hash != "" && ctx.Err() == nil {
		version, err := r.byHash(ctx, ref.Hash)
		if err == nil {
			return version, r.model(ctx, version.ModelID), nil
		}
		errs = append(errs, err)
	}
	if ref.ModelVersionID != 0 && ref.ModelID == 0 && ctx.Err() == nil {
		version, err := r.Registry.ModelVersion(ctx, ref.ModelVersionID)
		if err == nil {
			return version, r.model(ctx, version.ModelID), nil
		}
		errs = append(errs, fmt.Errorf("version %d: %w", ref.ModelVersionID, err))
	}
	if len(errs) == 0 {
		return nil, nil, errNoIdentity
	}
	return nil, nil, errors.Join(errs...)
}

func (r *Resolver) byHash(ctx context.Context, hash string) (*ModelVersion, error) {
	candidates := []string{hash}
	if len(hash) == 12 {
		candidates = append(candidates, hash[:shortHashLength])
	}
	var errs []error
	for _, candidate := range candidates {
		version, err := r.Registry.ModelVersionByHash(ctx, candidate)
		if err == nil {
			return version, nil
		}
		errs = append(errs, fmt.Errorf("hash %s: %w", candidate, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

// model fetches the full model record. Failure is not fatal, the version
// embeds a model summary.
func (r *Resolver) model(ctx context.Context, id int64) *Model {
	if id == 0 {
		return nil
	}
	model, err := r.Registry.Model(ctx, id)
	if err != nil {
		log.Debugf("model %d: %v", id, err)
		return nil
	}
	return model
}

func (r *Resolver) resolved(ref *resources.Reference, version *ModelVersion, model *Model) *ResolvedModel {
	m := &ResolvedModel{
		Key:            ref.Key(),
		Resolved:       true,
		Type:           ref.Type,
		Hash:           ref.Hash,
		Name:           ref.Name,
		Version:        version.Name,
		BaseModel:      version.BaseModel,
		TrainedWords:   version.TrainedWords,
		DownloadURL:    version.DownloadURL,
		ModelID:        version.ModelID,
		ModelVersionID: version.ID,
		Weight:         ref.Weight,
		Aliases:        slices.Clone(ref.Aliases),
	}
	switch {
	case model != nil:
		m.Name, m.Type = model.Name, model.Type
	case version.Model != nil:
		m.Name, m.Type = version.Model.Name, version.Model.Type
	}
	if m.Name != ref.Name && ref.Name != "" && !strings.EqualFold(ref.Name, resources.TypeUnknown) {
		m.Aliases = append([]string{ref.Name}, ref.Aliases...)
	}
	if file := version.PrimaryFile(); file != nil {
		if m.Hash == "" {
			m.Hash = strings.ToLower(file.Hashes["AutoV2"])
		}
		if m.DownloadURL == "" {
			m.DownloadURL = file.DownloadURL
		}
		if file.SizeKB > 0 {
			size := math.Round(file.SizeKB/1024*100) / 100
			m.FileSizeMB = &size
		}
	}
	for _, image := range version.Images {
		if image.URL != "" {
			m.Images = append(m.Images, image.URL)
		}
	}
	m.DisplayType = DisplayType(m.Type)
	m.URL = fmt.Sprintf("%s/models/%d?modelVersionId=%d", r.SiteURL, version.ModelID, version.ID)
	return m
}

// fallback is the record of an unresolved reference. Its URL searches the
// registry by name, or by hash if the name is unknown.
func (r *Resolver) fallback(ref *resources.Reference) *ResolvedModel {
	name := ref.Name
	if name == "" {
		name = resources.TypeUnknown
	}
	query := ref.Name
	if query == "" || strings.EqualFold(query, resources.TypeUnknown) {
		query = ref.Hash
	}
	m := &ResolvedModel{
		Key:            ref.Key(),
		Type:           ref.Type,
		DisplayType:    DisplayType(ref.Type),
		Hash:           ref.Hash,
		Name:           name,
		Version:        ref.Version,
		ModelID:        ref.ModelID,
		ModelVersionID: ref.ModelVersionID,
		Weight:         ref.Weight,
		Aliases:        slices.Clone(ref.Aliases),
	}
	switch {
	case ref.ModelID != 0:
		m.URL = fmt.Sprintf("%s/models/%d", r.SiteURL, ref.ModelID)
	case query != "":
		m.URL = r.SiteURL + "/search/models?query=" + url.QueryEscape(query)
	default:
		m.URL = r.SiteURL + "/models"
	}
	return m
}

// mergeResolved drops records resolving to an already seen model version,
// keeping the first and its aliases.
func mergeResolved(models []*ResolvedModel) []*ResolvedModel {
	var merged []*ResolvedModel
	seen := map[int64]*ResolvedModel{}
	for _, m := range models {
		if m == nil {
			continue
		}
		if m.Resolved && m.ModelVersionID != 0 {
			if first, ok := seen[m.ModelVersionID]; ok {
				for _, alias := range append([]string{m.Name}, m.Aliases...) {
					if alias != "" && alias != first.Name && !containsFold(first.Aliases, alias) {
						first.Aliases = append(first.Aliases, alias)
					}
				}
				continue
			}
			seen[m.ModelVersionID] = m
		}
		merged = append(merged, m)
	}
	return merged
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(item string) bool { return strings.EqualFold(item, s) })
}

// DisplayType is the human label of a registry resource type.
func DisplayType(t string) string {
	switch strings.ToLower(t) {
	case "checkpoint", "model":
		return "Checkpoint"
	case "lora":
		return "LoRA"
	case "locon", "lycoris":
		return "LyCORIS"
	case "dora":
		return "DoRA"
	case "textualinversion", "embed", "embedding":
		return "Embedding"
	case "hypernetwork":
		return "Hypernetwork"
	case "vae":
		return "VAE"
	case "controlnet":
		return "ControlNet"
	case "upscaler":
		return "Upscaler"
	case "adetailer":
		return "ADetailer"
	case "":
		return resources.TypeUnknown
	}
	return t
}
