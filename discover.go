package heartsync

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// discoverWindow is the cached shape of a discovery listing: the loaded
// candidates plus the offset-pagination cursor. Page n spans rows
// [n*pageSize, (n+1)*pageSize); a page shorter than pageSize terminates
// pagination.
type discoverWindow struct {
	Profiles []Profile
	NextPage int
	HasMore  bool
	Loaded   bool
}

func containsProfile(profiles []Profile, id string) bool {
	for i := range profiles {
		if profiles[i].ID == id {
			return true
		}
	}
	return false
}

// appendCandidates merges one offset page into the window, dedup-by-id.
func appendCandidates(w discoverWindow, page []Profile, pageSize int) discoverWindow {
	merged := make([]Profile, 0, len(w.Profiles)+len(page))
	merged = append(merged, w.Profiles...)
	for i := range page {
		if containsProfile(merged, page[i].ID) {
			continue
		}
		merged = append(merged, page[i])
	}
	w.Profiles = merged
	w.NextPage++
	w.HasMore = len(page) == pageSize
	w.Loaded = true
	return w
}

// removeCandidate filters one profile out of the window. Idempotent.
func removeCandidate(w discoverWindow, profileID string) discoverWindow {
	out := make([]Profile, 0, len(w.Profiles))
	for i := range w.Profiles {
		if w.Profiles[i].ID == profileID {
			continue
		}
		out = append(out, w.Profiles[i])
	}
	w.Profiles = out
	return w
}

// DiscoverPager pages through discovery candidates for one viewer+filter
// combination. The filter is part of the cache key, so distinct filters
// occupy distinct cache slots.
type DiscoverPager struct {
	c        *Client
	viewerID string
	filter   DiscoveryFilter
	resource string
	key      Key
	unwatch  func()

	mu      sync.Mutex
	loading bool
}

// DiscoverPager creates the optimized discovery pager: candidates come from
// the privacy-filtered remote view, already-liked profile IDs are fetched
// first and excluded via a negative-membership filter, and the remaining
// filters are applied remotely. A pager with an empty viewerID is disabled.
func (c *Client) DiscoverPager(viewerID string, filter DiscoveryFilter) *DiscoverPager {
	return c.newDiscoverPager(viewerID, filter, ResDiscover)
}

// FallbackDiscoverPager creates the unoptimized variant: it scans profiles
// remotely and applies exclusion and filtering client-side. Used directly or
// through SmartDiscoverPager when the optimized view is unavailable.
func (c *Client) FallbackDiscoverPager(viewerID string, filter DiscoveryFilter) *DiscoverPager {
	return c.newDiscoverPager(viewerID, filter, ResDiscoverFallback)
}

func (c *Client) newDiscoverPager(viewerID string, filter DiscoveryFilter, resource string) *DiscoverPager {
	p := &DiscoverPager{
		c:        c,
		viewerID: viewerID,
		filter:   filter,
		resource: resource,
		key:      K(resource, viewerID, filter),
	}
	if viewerID != "" {
		p.unwatch = c.cache.Watch(p.key, p.refreshFirstPage)
	}
	return p
}

func (p *DiscoverPager) window() discoverWindow {
	entry, ok := p.c.cache.Get(p.key)
	if !ok || entry.Status != StatusSuccess {
		return discoverWindow{}
	}
	w, _ := entry.Data.(discoverWindow)
	return w
}

// Profiles returns the loaded candidate working set.
func (p *DiscoverPager) Profiles() []Profile {
	return p.window().Profiles
}

// HasMore reports whether another page may exist.
func (p *DiscoverPager) HasMore() bool {
	w := p.window()
	return !w.Loaded || w.HasMore
}

// IsLoadingMore reports whether a page fetch is in flight.
func (p *DiscoverPager) IsLoadingMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// LoadMore fetches the next offset page and merges it into the working set.
// No-op while disabled, already loading, or exhausted.
func (p *DiscoverPager) LoadMore(ctx context.Context) error {
	if p.viewerID == "" {
		return nil
	}
	if ctx == nil {
		return ErrNilContext
	}

	p.mu.Lock()
	if p.loading {
		p.mu.Unlock()
		return nil
	}
	p.loading = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.loading = false
		p.mu.Unlock()
	}()

	w := p.window()
	if w.Loaded && !w.HasMore {
		return nil
	}

	pageSize := p.c.cfg.DiscoverPageSize
	page, err := p.fetchPage(ctx, w.NextPage, pageSize)
	if err != nil {
		return fmt.Errorf("load discovery page %d: %w", w.NextPage, err)
	}

	p.c.cache.Set(p.key, p.c.cfg.Moderate, func(old interface{}, ok bool) interface{} {
		cur, _ := old.(discoverWindow)
		return appendCandidates(cur, page, pageSize)
	})
	return nil
}

// fetchPage resolves one offset page through the variant's strategy.
func (p *DiscoverPager) fetchPage(ctx context.Context, pageNum, pageSize int) ([]Profile, error) {
	return fetchWithRetry(ctx, p.key.String(), func(ctx context.Context) ([]Profile, error) {
		if p.resource == ResDiscoverFallback {
			return p.fetchFallbackPage(ctx, pageNum, pageSize)
		}
		liked, err := p.c.store.LikedIDs(ctx, p.viewerID)
		if err != nil {
			return nil, fmt.Errorf("fetch liked ids: %w", err)
		}
		// An empty liked list means no exclusion filter at all.
		return p.c.store.DiscoverProfiles(ctx, p.viewerID, p.filter, liked, pageNum*pageSize, pageSize)
	})
}

// fetchFallbackPage scans every profile and applies the exclusion and the
// discovery filter client-side, then slices the requested offset page out of
// the filtered list.
func (p *DiscoverPager) fetchFallbackPage(ctx context.Context, pageNum, pageSize int) ([]Profile, error) {
	all, err := p.c.store.Profiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan profiles: %w", err)
	}
	liked, err := p.c.store.LikedIDs(ctx, p.viewerID)
	if err != nil {
		return nil, fmt.Errorf("fetch liked ids: %w", err)
	}
	likedSet := make(map[string]struct{}, len(liked))
	for _, id := range liked {
		likedSet[id] = struct{}{}
	}

	candidates := make([]Profile, 0, len(all))
	for _, cand := range all {
		if cand.ID == p.viewerID {
			continue
		}
		if _, already := likedSet[cand.ID]; already {
			continue
		}
		if !p.filter.Allows(cand) {
			continue
		}
		candidates = append(candidates, cand.Redacted())
	}

	start := pageNum * pageSize
	if start >= len(candidates) {
		return []Profile{}, nil
	}
	end := start + pageSize
	if end > len(candidates) {
		end = len(candidates)
	}
	return candidates[start:end], nil
}

// refreshFirstPage rebuilds the window from a fresh first page after an
// invalidation (likes and new matches change who is discoverable).
func (p *DiscoverPager) refreshFirstPage() {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	pageSize := p.c.cfg.DiscoverPageSize
	page, err := p.fetchPage(ctx, 0, pageSize)
	if err != nil {
		log.Printf("WARN: failed to refresh discovery listing for %s: %v", p.viewerID, err)
		return
	}
	p.c.cache.Set(p.key, p.c.cfg.Moderate, func(old interface{}, ok bool) interface{} {
		return appendCandidates(discoverWindow{}, page, pageSize)
	})
}

// Close unregisters the pager's cache watcher.
func (p *DiscoverPager) Close() {
	if p.unwatch != nil {
		p.unwatch()
		p.unwatch = nil
	}
}

// --- Smart composition ---

// SmartDiscoverPager composes the optimized and the fallback discovery
// pagers behind one result shape. The first error observed from the
// optimized path permanently (for this pager's lifetime) switches
// consumption to the fallback path.
type SmartDiscoverPager struct {
	primary  *DiscoverPager
	fallback *DiscoverPager
	sel      strategySelector
}

// SmartDiscoverPager creates the composed pager.
func (c *Client) SmartDiscoverPager(viewerID string, filter DiscoveryFilter) *SmartDiscoverPager {
	return &SmartDiscoverPager{
		primary:  c.DiscoverPager(viewerID, filter),
		fallback: c.FallbackDiscoverPager(viewerID, filter),
	}
}

func (s *SmartDiscoverPager) active() *DiscoverPager {
	if s.sel.Active() == StrategyFallback {
		return s.fallback
	}
	return s.primary
}

// LoadMore drives the active variant. A primary failure latches the
// fallback and retries the page there immediately.
func (s *SmartDiscoverPager) LoadMore(ctx context.Context) error {
	if s.sel.Active() == StrategyPrimary {
		err := s.primary.LoadMore(ctx)
		if s.sel.Observe(err) == StrategyPrimary {
			return nil
		}
		if err != nil {
			log.Printf("WARN: optimized discovery failed, switching to fallback: %v", err)
		}
	}
	return s.fallback.LoadMore(ctx)
}

// Profiles returns the active variant's working set.
func (s *SmartDiscoverPager) Profiles() []Profile { return s.active().Profiles() }

// HasMore reports the active variant's pagination state.
func (s *SmartDiscoverPager) HasMore() bool { return s.active().HasMore() }

// Strategy exposes which variant is being consumed.
func (s *SmartDiscoverPager) Strategy() Strategy { return s.sel.Active() }

// Close closes both variants.
func (s *SmartDiscoverPager) Close() {
	s.primary.Close()
	s.fallback.Close()
}

// --- Pass ---

// PassProfile removes a profile from every cached discovery working set, in
// both variants and every filter slot. No remote write happens: passes are
// not persisted server-side, so they do not survive cache eviction, a
// reload, or a second device. Documented product behavior, not a defect.
func (c *Client) PassProfile(profileID string) {
	if profileID == "" {
		return
	}
	for _, resource := range []string{ResDiscover, ResDiscoverFallback} {
		c.cache.UpdateResource(resource, c.cfg.Moderate, func(old interface{}) interface{} {
			cur, ok := old.(discoverWindow)
			if !ok {
				return old
			}
			return removeCandidate(cur, profileID)
		})
	}
}

// trimDiscovery is the working-set removal shared with LikeProfile.
func (c *Client) trimDiscovery(profileID string) {
	c.PassProfile(profileID)
}
