package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"time"

	"nostr-feed/internal/engine"
	"nostr-feed/internal/relay"
	"nostr-feed/internal/types"
)

// RelayStates is implemented by relay.Manager
type RelayStates interface {
	States() map[string]relay.State
}

// StoreStats is implemented by store.Snapshots
type StoreStats interface {
	Stats() (written, dropped int64)
}

// server exposes health, metrics and a small control surface over HTTP
type server struct {
	engine      *engine.Engine
	relays      RelayStates
	store       StoreStats
	sink        *logSink
	backendType string
	started     time.Time
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)
	mux.HandleFunc("POST /feed/older", s.olderHandler)
	mux.HandleFunc("POST /feed/view", s.viewHandler)
	return mux
}

// RelayHealthDetail holds per-relay health information
type RelayHealthDetail struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	states := s.relays.States()
	details := make([]RelayHealthDetail, 0, len(states))
	open := 0
	for url, st := range states {
		if st == relay.StateOpen {
			open++
		}
		details = append(details, RelayHealthDetail{URL: url, Status: st.String()})
	}
	sort.Slice(details, func(i, j int) bool { return details[i].URL < details[j].URL })

	status, code := "ok", http.StatusOK
	if open == 0 {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"open":   open,
		"relays": details,
	})
}

func (s *server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) olderHandler(w http.ResponseWriter, r *http.Request) {
	started, err := s.engine.LoadOlder()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": started})
}

func (s *server) viewHandler(w http.ResponseWriter, r *http.Request) {
	kind, err := types.ParseFeedKind(r.URL.Query().Get("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	view := types.FeedView{Kind: kind, Author: r.URL.Query().Get("author")}
	if kind == types.FeedAuthor && view.Author == "" {
		http.Error(w, "author is required", http.StatusBadRequest)
		return
	}
	if err := s.engine.SetView(view); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"view": view.String()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// metricsHandler serves Prometheus-compatible metrics
func (s *server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	fmt.Fprintf(w, "# HELP feed_build_info Build and configuration information\n")
	fmt.Fprintf(w, "# TYPE feed_build_info gauge\n")
	fmt.Fprintf(w, "feed_build_info{store_backend=%q,go_version=%q} 1\n\n", s.backendType, runtime.Version())

	fmt.Fprintf(w, "# HELP process_uptime_seconds Time since process started\n")
	fmt.Fprintf(w, "# TYPE process_uptime_seconds gauge\n")
	fmt.Fprintf(w, "process_uptime_seconds %.0f\n\n", time.Since(s.started).Seconds())

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	fmt.Fprintf(w, "# HELP go_goroutines Number of active goroutines\n")
	fmt.Fprintf(w, "# TYPE go_goroutines gauge\n")
	fmt.Fprintf(w, "go_goroutines %d\n\n", runtime.NumGoroutine())

	fmt.Fprintf(w, "# HELP go_memstats_heap_inuse_bytes Heap memory in use\n")
	fmt.Fprintf(w, "# TYPE go_memstats_heap_inuse_bytes gauge\n")
	fmt.Fprintf(w, "go_memstats_heap_inuse_bytes %d\n\n", memStats.HeapInuse)

	// Relays
	fmt.Fprintf(w, "# HELP feed_relay_up Relay connection state (1 = open)\n")
	fmt.Fprintf(w, "# TYPE feed_relay_up gauge\n")
	states := s.relays.States()
	urls := make([]string, 0, len(states))
	for url := range states {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	for _, url := range urls {
		up := 0
		if states[url] == relay.StateOpen {
			up = 1
		}
		fmt.Fprintf(w, "feed_relay_up{relay=%q} %d\n", url, up)
	}
	fmt.Fprintln(w)

	// Engine counters
	counters := []struct {
		name, help string
		value      int64
	}{
		{"feed_frames_total", "Relay frames received", stats.Frames},
		{"feed_frames_malformed_total", "Frames dropped as malformed", stats.Malformed},
		{"feed_events_duplicate_total", "Events dropped as duplicates", stats.Duplicates},
		{"feed_events_rejected_total", "Events rejected by the active view", stats.Rejected},
		{"feed_posts_accepted_total", "Posts cached", stats.Accepted},
		{"feed_posts_orphaned_total", "Replies held for a missing parent", stats.Orphaned},
		{"feed_profiles_stale_total", "Profile updates older than the cached one", stats.Stale},
		{"feed_relay_notices_total", "NOTICE frames received", stats.Notices},
		{"feed_relay_disconnects_total", "Relay disconnects", stats.Disconnects},
		{"feed_subscriptions_opened_total", "Subscriptions opened", stats.SubsOpened},
		{"feed_profile_batches_total", "Profile batch subscriptions", stats.ProfileBatches},
		{"feed_pages_total", "Pagination requests", stats.Pages},
		{"feed_sweeps_total", "Eviction sweeps", stats.Sweeps},
		{"feed_posts_evicted_total", "Posts evicted", stats.PostsEvicted},
		{"feed_profiles_evicted_total", "Profiles evicted", stats.ProfilesEvicted},
		{"feed_published_total", "Events published", stats.Published},
		{"feed_publish_acked_total", "Publishes accepted by a relay", stats.PublishAcked},
		{"feed_publish_rejected_total", "Publishes rejected by a relay", stats.PublishRejected},
	}
	for _, c := range counters {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", c.name, c.help, c.name, c.name, c.value)
	}

	gauges := []struct {
		name, help string
		value      int
	}{
		{"feed_posts_cached", "Posts in cache", stats.Posts},
		{"feed_profiles_cached", "Profiles in cache", stats.Profiles},
		{"feed_posts_rendered", "Posts in the rendered set", stats.Rendered},
		{"feed_subscriptions_active", "Open subscriptions", stats.Subscriptions},
		{"feed_orphans_waiting", "Replies waiting for a parent", stats.OrphansWaiting},
		{"feed_profiles_pending", "Profiles requested and not yet answered", stats.PendingProfiles},
		{"feed_follows", "Size of the follow set", stats.Follows},
	}
	for _, g := range gauges {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", g.name, g.help, g.name, g.name, g.value)
	}

	loading := 0
	if s.sink.loading.Load() {
		loading = 1
	}
	fmt.Fprintf(w, "# HELP feed_loading Feed loading indicator\n")
	fmt.Fprintf(w, "# TYPE feed_loading gauge\n")
	fmt.Fprintf(w, "feed_loading{view=%q} %d\n\n", stats.View, loading)

	written, dropped := s.store.Stats()
	fmt.Fprintf(w, "# HELP feed_store_writes_total Snapshot writes\n")
	fmt.Fprintf(w, "# TYPE feed_store_writes_total counter\n")
	fmt.Fprintf(w, "feed_store_writes_total %d\n\n", written)
	fmt.Fprintf(w, "# HELP feed_store_dropped_total Snapshot writes dropped on a full queue\n")
	fmt.Fprintf(w, "# TYPE feed_store_dropped_total counter\n")
	fmt.Fprintf(w, "feed_store_dropped_total %d\n", dropped)
}
