package member

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/payouts/core"
)

// findPlacement picks the placement parent and position for a new member of `sponsor`.
// An explicit placement must be the sponsor or one of its placement descendants and have a free position.
// Otherwise the sponsor's placement subtree is searched breadth-first, children in position order,
// and the first member with a free position wins.
func (svc *Service) findPlacement(ctx context.Context, exec core.DBExecutor, sponsor Member, placement string) (string, int, error) {
	if placement != "" {
		parent, err := svc.repo.GetMember(ctx, GetFilter{Username: placement}, exec)
		if err != nil {
			if err == ErrNotFound {
				return "", 0, core.NewValidationError(err, core.FieldError{Field: "placement", Error: "placement not found"})
			}
			return "", 0, errors.Wrap(err, "finding placement")
		}
		inTeam, err := svc.isPlacementDescendant(ctx, exec, parent, sponsor.ID)
		if err != nil {
			return "", 0, err
		}
		if !inTeam {
			return "", 0, core.NewValidationError(ErrPlacementOutsideTeam, core.FieldError{Field: "placement", Error: ErrPlacementOutsideTeam.Error()})
		}
		children, err := svc.repo.PlacementChildren(ctx, []string{parent.ID}, exec)
		if err != nil {
			return "", 0, errors.Wrap(err, "finding placement children")
		}
		pos, ok := freePosition(children, svc.matrixWidth)
		if !ok {
			return "", 0, core.NewValidationError(ErrPlacementFull, core.FieldError{Field: "placement", Error: ErrPlacementFull.Error()})
		}
		return parent.ID, pos, nil
	}

	level := []string{sponsor.ID}
	for len(level) > 0 {
		children, err := svc.repo.PlacementChildren(ctx, level, exec)
		if err != nil {
			return "", 0, errors.Wrap(err, "finding placement children")
		}
		byParent := make(map[string][]Member, len(level))
		for _, c := range children {
			byParent[c.PlacementID.String] = append(byParent[c.PlacementID.String], c)
		}

		next := make([]string, 0, len(children))
		for _, id := range level {
			kids := byParent[id]
			if pos, ok := freePosition(kids, svc.matrixWidth); ok {
				return id, pos, nil
			}
			sort.Slice(kids, func(i, j int) bool { return kids[i].PlacementPos < kids[j].PlacementPos })
			for _, k := range kids {
				next = append(next, k.ID)
			}
		}
		level = next
	}
	// unreachable: the deepest level always has free positions
	return "", 0, errors.New("no placement found")
}

// isPlacementDescendant reports whether `m` is `ancestorID` or sits below it in the placement tree.
func (svc *Service) isPlacementDescendant(ctx context.Context, exec core.DBExecutor, m Member, ancestorID string) (bool, error) {
	seen := make(map[string]bool)
	for {
		if m.ID == ancestorID {
			return true, nil
		}
		if !m.PlacementID.Valid || seen[m.ID] {
			return false, nil
		}
		seen[m.ID] = true

		parent, err := svc.repo.GetMember(ctx, GetFilter{ID: m.PlacementID.String}, exec)
		if err != nil {
			return false, errors.Wrap(err, "walking placement tree")
		}
		m = parent
	}
}

// freePosition returns the lowest position in [0, width) not taken by children.
func freePosition(children []Member, width int) (int, bool) {
	if len(children) >= width {
		return 0, false
	}
	taken := make(map[int]bool, len(children))
	for _, c := range children {
		taken[c.PlacementPos] = true
	}
	for pos := 0; pos < width; pos++ {
		if !taken[pos] {
			return pos, true
		}
	}
	return 0, false
}
