package portal

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/green3g/vscode-arcgis-assistant/internal/logging"
	"github.com/green3g/vscode-arcgis-assistant/internal/metrics"
)

// FolderSummary is one content folder of a user.
type FolderSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// GroupSummary is one group the user belongs to.
type GroupSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// UserSummary is one organization member.
type UserSummary struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

// ItemSummary is one search result row.
type ItemSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	Owner       string `json:"owner"`
	OwnerFolder string `json:"ownerFolder"`
}

// Folders lists the content folders of owner (default: the
// authenticated user).
func (s *Session) Folders(ctx context.Context, owner string) ([]FolderSummary, error) {
	if owner == "" {
		cred, err := s.Authenticate(ctx)
		if err != nil {
			return nil, err
		}
		owner = cred.Username
	}
	var resp struct {
		Folders []FolderSummary `json:"folders"`
	}
	if err := s.get(ctx, "folders", "/content/users/"+url.PathEscape(owner), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Folders, nil
}

// Groups lists the groups the authenticated user belongs to, sorted
// by title (ordinal ascending).
func (s *Session) Groups(ctx context.Context) ([]GroupSummary, error) {
	cred, err := s.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Groups []GroupSummary `json:"groups"`
	}
	if err := s.get(ctx, "groups", "/community/users/"+url.PathEscape(cred.Username), nil, &resp); err != nil {
		return nil, err
	}
	sort.Slice(resp.Groups, func(i, j int) bool {
		return resp.Groups[i].Title < resp.Groups[j].Title
	})
	return resp.Groups, nil
}

// Users lists the organization's members, paginated, sorted by
// username ascending.
func (s *Session) Users(ctx context.Context) ([]UserSummary, error) {
	base := url.Values{}
	base.Set("sortField", "username")
	base.Set("sortOrder", "asc")

	type usersPage struct {
		Total int           `json:"total"`
		Users []UserSummary `json:"users"`
	}

	var probe usersPage
	if err := s.get(ctx, "users", "/portals/self/users", withPage(base, 1, 0), &probe); err != nil {
		return nil, err
	}

	pages := pageCount(probe.Total, s.pageSize)
	results := make([][]UserSummary, pages)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < pages; i++ {
		i := i
		g.Go(func() error {
			var page usersPage
			vals := withPage(base, 1+i*s.pageSize, s.pageSize)
			if err := s.get(gctx, "users", "/portals/self/users", vals, &page); err != nil {
				logging.Warn("user page failed", zap.Int("page", i), zap.Error(err))
				metrics.RecordSearchPage(false)
				return nil
			}
			metrics.RecordSearchPage(true)
			results[i] = page.Users
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return concat(results), nil
}

// SearchItems runs a paginated item search. The total is determined
// with a zero-size probe, then all pages are requested concurrently.
// A failed page degrades to an empty page (logged, not fatal); the
// aggregate is concatenated in request order so it follows the
// portal's sort order, not network completion order.
func (s *Session) SearchItems(ctx context.Context, query string) ([]ItemSummary, error) {
	base := url.Values{}
	base.Set("q", query)
	base.Set("sortField", "title")
	base.Set("sortOrder", "asc")

	type searchPage struct {
		Total   int           `json:"total"`
		Results []ItemSummary `json:"results"`
	}

	var probe searchPage
	if err := s.get(ctx, "search", "/search", withPage(base, 1, 0), &probe); err != nil {
		return nil, err
	}

	pages := pageCount(probe.Total, s.pageSize)
	results := make([][]ItemSummary, pages)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < pages; i++ {
		i := i
		g.Go(func() error {
			var page searchPage
			vals := withPage(base, 1+i*s.pageSize, s.pageSize)
			if err := s.get(gctx, "search", "/search", vals, &page); err != nil {
				logging.Warn("search page failed",
					zap.Int("page", i), zap.String("q", query), zap.Error(err))
				metrics.RecordSearchPage(false)
				return nil
			}
			metrics.RecordSearchPage(true)
			results[i] = page.Results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return concat(results), nil
}

// ItemsForOwner searches the items owned directly by owner (outside
// any folder). An empty owner means the authenticated user.
func (s *Session) ItemsForOwner(ctx context.Context, owner string) ([]ItemSummary, error) {
	profile, err := s.Self(ctx)
	if err != nil {
		return nil, err
	}
	if owner == "" {
		owner = profile.Username
	}
	q := NewQuery().
		Match(profile.OrgID).In("orgid").And().
		Match("root").In("ownerfolder").And().
		Match(owner).In("owner").
		String()
	return s.SearchItems(ctx, q)
}

func withPage(base url.Values, start, num int) url.Values {
	vals := url.Values{}
	for k, vs := range base {
		vals[k] = vs
	}
	vals.Set("start", strconv.Itoa(start))
	vals.Set("num", strconv.Itoa(num))
	return vals
}

func pageCount(total, pageSize int) int {
	if total <= 0 {
		return 0
	}
	if pageSize <= 0 {
		panic(fmt.Sprintf("invalid page size %d", pageSize))
	}
	return (total + pageSize - 1) / pageSize
}

func concat[T any](pages [][]T) []T {
	var out []T
	for _, page := range pages {
		out = append(out, page...)
	}
	return out
}
