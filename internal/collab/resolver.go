package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"scenecraft/internal/logging"
	"scenecraft/internal/types"
)

// deleteActions are the primary actions that make a create/destroy turn a
// deletion rather than a creation.
var deleteActions = map[string]bool{
	"delete": true, "remove": true, "destroy": true, "clear": true,
}

// CatalogResolver resolves object references deterministically against the
// asset catalog and the current scene. It is the default resolver when no
// LLM is configured, and the validation backstop for the Gemini resolver.
type CatalogResolver struct {
	catalog *Catalog
}

// NewCatalogResolver wraps a catalog as an AssetResolver.
func NewCatalogResolver(catalog *Catalog) *CatalogResolver {
	return &CatalogResolver{catalog: catalog}
}

// Resolve maps each involved object reference to either a pending catalog
// instantiation or a deletion target. An unresolved reference is a local
// failure for that reference only.
func (r *CatalogResolver) Resolve(ctx context.Context, cmd *types.ParsedCommand, scene []types.SceneObject) (*Resolution, error) {
	res := &Resolution{}
	deleting := deleteActions[cmd.PrimaryAction]

	for _, name := range cmd.InvolvedObjects {
		if deleting {
			ids := matchSceneIDs(scene, name)
			if len(ids) == 0 {
				res.Unresolved = append(res.Unresolved, name)
				continue
			}
			res.DeleteIDs = append(res.DeleteIDs, ids...)
			continue
		}

		entry, ok := r.catalog.Find(name)
		if !ok {
			res.Unresolved = append(res.Unresolved, name)
			continue
		}
		res.NewObjects = append(res.NewObjects, entry.Instantiate())
	}

	logging.Get(logging.CategoryAssets).Info("resolved %d create, %d delete, %d unresolved",
		len(res.NewObjects), len(res.DeleteIDs), len(res.Unresolved))
	return res, nil
}

// matchSceneIDs returns the ids of scene objects whose name contains the
// query, case-insensitively.
func matchSceneIDs(scene []types.SceneObject, query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	var ids []string
	for i := range scene {
		if strings.Contains(strings.ToLower(scene[i].Name), q) {
			ids = append(ids, scene[i].ID)
		}
	}
	return ids
}

const resolverSystemPrompt = `You are the asset resolver for a natural-language 3D scene editor.
Given a structured command, the asset catalog, and the current scene, decide which
catalog assets to instantiate and which existing objects to delete.

Respond with ONLY a JSON object:
{
  "create": [{"catalogName": "chair", "count": 2}],
  "deleteIds": ["sofa_01"],
  "unresolvedNames": ["unicorn"]
}

Rules:
- catalogName must be the exact name of a catalog entry.
- deleteIds must be exact ids of existing scene objects.
- A reference you cannot map to the catalog or the scene goes in unresolvedNames.
- Quantity phrases expand: "3 chairs" means count 3.`

// GeminiResolver asks an LLM to select catalog entries and deletion targets,
// then validates every choice against the catalog and scene. Choices that do
// not validate are demoted to unresolved names rather than trusted.
type GeminiResolver struct {
	client  LLMClient
	catalog *Catalog
}

// NewGeminiResolver wraps an LLM client and catalog as an AssetResolver.
func NewGeminiResolver(client LLMClient, catalog *Catalog) *GeminiResolver {
	return &GeminiResolver{client: client, catalog: catalog}
}

// resolverResponse is the raw wire shape before boundary validation.
type resolverResponse struct {
	Create []struct {
		CatalogName string `json:"catalogName"`
		Count       int    `json:"count"`
	} `json:"create"`
	DeleteIDs       []string `json:"deleteIds"`
	UnresolvedNames []string `json:"unresolvedNames"`
}

// Resolve sends the intent, catalog, and scene to the LLM and validates the
// selections it makes.
func (r *GeminiResolver) Resolve(ctx context.Context, cmd *types.ParsedCommand, scene []types.SceneObject) (*Resolution, error) {
	catalogNames := make([]string, 0, len(r.catalog.Entries))
	for _, e := range r.catalog.Entries {
		catalogNames = append(catalogNames, e.Name)
	}
	sceneRefs := make([]map[string]string, 0, len(scene))
	for i := range scene {
		sceneRefs = append(sceneRefs, map[string]string{"id": scene[i].ID, "name": scene[i].Name})
	}

	cmdJSON, _ := json.Marshal(cmd)
	sceneJSON, _ := json.Marshal(sceneRefs)

	prompt := fmt.Sprintf("COMMAND:\n%s\n\nCATALOG ENTRIES:\n%s\n\nSCENE OBJECTS:\n%s",
		cmdJSON, strings.Join(catalogNames, ", "), sceneJSON)

	raw, err := r.client.CompleteWithSystem(ctx, resolverSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var resp resolverResponse
	if err := decodeResponse(raw, &resp); err != nil {
		return nil, err
	}

	sceneIDs := make(map[string]bool, len(scene))
	for i := range scene {
		sceneIDs[scene[i].ID] = true
	}

	res := &Resolution{Unresolved: resp.UnresolvedNames}
	for _, c := range resp.Create {
		entry, ok := r.catalog.Find(c.CatalogName)
		if !ok {
			res.Unresolved = append(res.Unresolved, c.CatalogName)
			continue
		}
		count := c.Count
		if count < 1 {
			count = 1
		}
		for i := 0; i < count; i++ {
			res.NewObjects = append(res.NewObjects, entry.Instantiate())
		}
	}
	for _, id := range resp.DeleteIDs {
		if !sceneIDs[id] {
			res.Unresolved = append(res.Unresolved, id)
			continue
		}
		res.DeleteIDs = append(res.DeleteIDs, id)
	}

	logging.Get(logging.CategoryAssets).Info("resolved %d create, %d delete, %d unresolved",
		len(res.NewObjects), len(res.DeleteIDs), len(res.Unresolved))
	return res, nil
}
