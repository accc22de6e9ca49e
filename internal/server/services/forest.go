package services

import (
	"context"

	"github.com/dmitrijs2005/mycloud/internal/common"
	"github.com/dmitrijs2005/mycloud/internal/server/models"
	"github.com/dmitrijs2005/mycloud/internal/server/repositories/folders"
)

// forest is an in-memory adjacency index over one owner's folders.
type forest struct {
	byID     map[string]*models.Folder
	children map[string][]*models.Folder
	roots    []*models.Folder
}

func loadForest(ctx context.Context, repo folders.Repository, ownerID string) (*forest, error) {
	all, err := repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	f := &forest{
		byID:     make(map[string]*models.Folder, len(all)),
		children: make(map[string][]*models.Folder),
	}
	for _, folder := range all {
		f.byID[folder.ID] = folder
		if folder.ParentID == nil {
			f.roots = append(f.roots, folder)
			continue
		}
		f.children[*folder.ParentID] = append(f.children[*folder.ParentID], folder)
	}
	return f, nil
}

// subtree returns the folder with id followed by all of its descendants in
// breadth-first order, or nil when id is not in the forest. Each folder is
// visited at most once.
func (f *forest) subtree(id string) []*models.Folder {
	start, ok := f.byID[id]
	if !ok {
		return nil
	}

	visited := map[string]bool{id: true}
	result := []*models.Folder{start}
	for i := 0; i < len(result); i++ {
		for _, child := range f.children[result[i].ID] {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			result = append(result, child)
		}
	}
	return result
}

// folderTree is the owner-scoped transitive closure of id over parent_id.
func folderTree(ctx context.Context, repo folders.Repository, ownerID, id string) ([]*models.Folder, error) {
	f, err := loadForest(ctx, repo, ownerID)
	if err != nil {
		return nil, err
	}
	tree := f.subtree(id)
	if tree == nil {
		return nil, common.ErrorNotFound
	}
	return tree, nil
}

func folderIDs(list []*models.Folder) []string {
	ids := make([]string, len(list))
	for i, f := range list {
		ids[i] = f.ID
	}
	return ids
}

func fileIDs(list []*models.File) []string {
	ids := make([]string, len(list))
	for i, f := range list {
		ids[i] = f.ID
	}
	return ids
}

func contains(list []*models.Folder, id string) bool {
	for _, f := range list {
		if f.ID == id {
			return true
		}
	}
	return false
}
